package pickup

import (
	"context"
	"errors"
	"fmt"
)

// Backend is the remote pickup service. It is the source of truth for
// every persisted record; nothing here caches its answers.
type Backend interface {
	StudentLogin(ctx context.Context, regNo, dob string) (StudentRecord, error)
	StaffLogin(ctx context.Context, username, password string) (string, error)
	RegisterPickup(ctx context.Context, reg Registration) error
	SearchPickup(ctx context.Context, query string) ([]PickupRecord, error)
	ApprovePickup(ctx context.Context, regNo, facultyName string) error
	MarkPicked(ctx context.Context, regNo string) error
	NotRegistered(ctx context.Context) ([]StudentRecord, error)
}

// Uploader stores a photo payload and returns its retrieval URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Preparer gates a payload before upload: reject non-images, shrink
// oversized ones.
type Preparer interface {
	Prepare(data []byte) ([]byte, error)
}

// Service drives the parent-side registration flow.
type Service struct {
	backend  Backend
	uploader Uploader
	photos   Preparer
}

// NewService wires the registration flow.
func NewService(backend Backend, uploader Uploader, photos Preparer) *Service {
	return &Service{backend: backend, uploader: uploader, photos: photos}
}

// ParentLogin authenticates a parent by register number and date of birth.
func (s *Service) ParentLogin(ctx context.Context, regNo, dob string) (StudentRecord, error) {
	if regNo == "" || dob == "" {
		return StudentRecord{}, &ValidationError{Field: "regNo/dob", Reason: "both required"}
	}
	student, err := s.backend.StudentLogin(ctx, regNo, dob)
	if err != nil {
		return StudentRecord{}, err
	}
	if student.RegNo == "" {
		student.RegNo = regNo
	}
	return student, nil
}

// StaffLogin authenticates staff credentials and returns the faculty name.
func (s *Service) StaffLogin(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", &ValidationError{Field: "username/password", Reason: "both required"}
	}
	return s.backend.StaffLogin(ctx, username, password)
}

// BindPhoto runs the upload pipeline: validate or shrink the payload,
// upload it, and return the URL to bind into the pending registration.
// On failure nothing is bound and the caller must retry.
func (s *Service) BindPhoto(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", &ValidationError{Field: "file", Reason: "empty upload"}
	}
	payload, err := s.photos.Prepare(data)
	if err != nil {
		return "", err
	}
	url, err := s.uploader.Upload(ctx, payload, filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return url, nil
}

// Register validates and submits a registration, then re-fetches the
// record so the caller renders backend state, not its own. A backend
// answer of already_registered resolves to the existing record instead
// of an error, so repeat submissions behave as idempotent reads.
func (s *Service) Register(ctx context.Context, reg Registration) (PickupRecord, error) {
	reg.Phone = NormalizePhone(reg.Phone)
	if err := reg.Validate(); err != nil {
		return PickupRecord{}, err
	}

	if err := s.backend.RegisterPickup(ctx, reg); err != nil {
		var rej *RejectionError
		if !errors.As(err, &rej) || rej.Status != "already_registered" {
			return PickupRecord{}, err
		}
	}

	if rec, err := s.lookup(ctx, reg.RegNo); err == nil && rec != nil {
		return *rec, nil
	}
	// Registration succeeded but the re-fetch came back empty; report
	// what the backend just accepted.
	return PickupRecord{
		RegNo:       reg.RegNo,
		StudentName: reg.StudentName,
		PickupName:  reg.PickupName,
		Relation:    reg.Relation,
		Phone:       reg.Phone,
		PickupPhoto: reg.PickupPhoto,
		Status:      StatusRegistered,
	}, nil
}

// Status reports the display stage for a student, re-deriving it from a
// fresh search every time.
func (s *Service) Status(ctx context.Context, regNo string) (Stage, *PickupRecord, error) {
	rec, err := s.lookup(ctx, regNo)
	if err != nil {
		return "", nil, err
	}
	return StageFor(rec), rec, nil
}

func (s *Service) lookup(ctx context.Context, regNo string) (*PickupRecord, error) {
	records, err := s.backend.SearchPickup(ctx, regNo)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].RegNo == regNo || records[i].RegNo == "" {
			return &records[i], nil
		}
	}
	return nil, nil
}
