package pickup

import (
	"errors"
	"fmt"
)

// ErrNetwork marks a transport-level failure talking to the pickup
// service. Retry is always user-initiated.
var ErrNetwork = errors.New("pickup service unreachable")

// ErrUpload marks a photo upload failure. The pending photo binding is
// cleared and submission stays blocked until a retry succeeds.
var ErrUpload = errors.New("photo upload failed")

// ValidationError is a missing or malformed form field. No upstream
// call is made when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RejectionError is a well-formed response whose status is not the
// success status for the attempted action. The pre-action state stands.
type RejectionError struct {
	Action string
	Status string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: status %q", e.Action, e.Status)
}
