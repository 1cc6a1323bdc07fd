// Package audit records event-day actions taken through the gateway.
// The trail is observational; the remote pickup service stays the
// source of truth for pickup state.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded action: a login, registration, approval or
// final pickup.
type Event struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	RegNo     string    `json:"regNo"`
	Actor     string    `json:"actor"`
	When      time.Time `json:"when"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actions recorded in the trail.
const (
	ActionParentLogin = "parent_login"
	ActionStaffLogin  = "staff_login"
	ActionRegister    = "register"
	ActionApprove     = "approve"
	ActionMarkPicked  = "mark_picked"
)

// Repository persists audit events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertEvent writes one audit row. Missing id and timestamp are filled.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	if evt.Action == "" {
		return Event{}, errors.New("action required")
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.When.IsZero() {
		evt.When = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO pickup_audit (id, action, reg_no, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, evt.ID, evt.Action, evt.RegNo, evt.Actor, evt.When)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// ListEvents returns the trail, newest first, optionally filtered by
// register number.
func (r *Repository) ListEvents(ctx context.Context, regNo string, limit, offset int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, action, reg_no, actor, occurred_at, created_at
		FROM pickup_audit
	`
	args := []any{}
	if regNo != "" {
		query += ` WHERE reg_no = $1 ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`
		args = append(args, regNo, limit, offset)
	} else {
		query += ` ORDER BY occurred_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Action, &evt.RegNo, &evt.Actor, &evt.When, &evt.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
