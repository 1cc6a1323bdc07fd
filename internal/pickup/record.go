package pickup

// Status is the lifecycle position of a pickup record. The order is
// REGISTERED -> APPROVED -> PICKED and never moves backwards.
type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusApproved   Status = "APPROVED"
	StatusPicked     Status = "PICKED"
)

// Known reports whether s is one of the lifecycle statuses.
func (s Status) Known() bool {
	return s == StatusRegistered || s == StatusApproved || s == StatusPicked
}

// StudentRecord is the enrollment row held by the pickup service.
// Read-only on this side; Registered is the service's "YES"/"NO" flag.
type StudentRecord struct {
	RegNo      string `json:"regNo"`
	Name       string `json:"name"`
	Class      string `json:"class"`
	Section    string `json:"section"`
	Photo      string `json:"photo"`
	Registered string `json:"registered"`
}

// PickupRecord is one registered pickup person for a student.
// At most one active record exists per regNo.
type PickupRecord struct {
	RegNo       string `json:"regNo"`
	StudentName string `json:"studentName,omitempty"`
	PickupName  string `json:"pickupName"`
	Relation    string `json:"relation"`
	Phone       string `json:"phone"`
	PickupPhoto string `json:"pickupPhoto"`
	Status      Status `json:"statusPickup"`
	ApprovedBy  string `json:"approvedBy,omitempty"`
}

// Relations is the fixed choice list offered on the registration form.
// Older data may carry free text; validation only requires non-empty.
var Relations = []string{
	"Father", "Mother", "Brother", "Sister",
	"Uncle", "Aunty", "Grandpa", "Grandma",
}

// Stage is the UI mode a parent or staff view renders for a student.
type Stage string

const (
	StageFormInput  Stage = "FORM_INPUT"
	StageRegistered Stage = "REGISTERED_DISPLAY"
	StageApproved   Stage = "APPROVED_DISPLAY"
	StagePicked     Stage = "PICKED_DISPLAY"
)

// StageFor derives the display stage from an optional pickup record.
// This is the single place UI mode is computed; views must not re-derive
// it from raw flags. A record with an unknown status is treated as absent.
func StageFor(rec *PickupRecord) Stage {
	if rec == nil {
		return StageFormInput
	}
	switch rec.Status {
	case StatusRegistered:
		return StageRegistered
	case StatusApproved:
		return StageApproved
	case StatusPicked:
		return StagePicked
	default:
		return StageFormInput
	}
}

// Action is a staff-side forward transition.
type Action string

const (
	ActionNone       Action = ""
	ActionApprove    Action = "approve"
	ActionMarkPicked Action = "pick"
)

// ActionFor returns the one action staff may take on a record in the
// given status. PICKED is terminal.
func ActionFor(s Status) Action {
	switch s {
	case StatusRegistered:
		return ActionApprove
	case StatusApproved:
		return ActionMarkPicked
	default:
		return ActionNone
	}
}
