package pickup

import "strings"

// Registration is the pending form a parent submits.
type Registration struct {
	RegNo       string `json:"regNo"`
	StudentName string `json:"studentName"`
	PickupName  string `json:"pickupName"`
	Relation    string `json:"relation"`
	Phone       string `json:"phone"`
	PickupPhoto string `json:"pickupPhoto"`
}

// NormalizePhone strips everything but digits, drops a 91 country prefix
// on twelve-digit input, and caps the result at ten digits.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		digits = digits[2:]
	}
	if len(digits) > 10 {
		digits = digits[:10]
	}
	return digits
}

// Validate checks the required registration fields. Phone must already
// be normalized. The first violation found is returned.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.RegNo) == "" {
		return &ValidationError{Field: "regNo", Reason: "required"}
	}
	if strings.TrimSpace(r.PickupName) == "" {
		return &ValidationError{Field: "pickupName", Reason: "required"}
	}
	if strings.TrimSpace(r.Relation) == "" {
		return &ValidationError{Field: "relation", Reason: "required"}
	}
	if len(r.Phone) != 10 {
		return &ValidationError{Field: "phone", Reason: "must be exactly 10 digits"}
	}
	if strings.TrimSpace(r.PickupPhoto) == "" {
		return &ValidationError{Field: "pickupPhoto", Reason: "photo not uploaded yet"}
	}
	return nil
}
