package pickup

import (
	"context"
	"strings"
	"sync"
)

// Result is one search hit together with the single action staff may
// take on it next.
type Result struct {
	Record PickupRecord `json:"record"`
	Next   Action       `json:"next"`
}

// Dispatcher resolves staff queries to records and drives their forward
// transitions. Every mutation re-issues the originating search so the
// refreshed set always comes from the backend.
type Dispatcher struct {
	backend Backend

	mu       sync.Mutex
	scanning map[string]bool
}

// NewDispatcher creates a dispatcher over the given backend.
func NewDispatcher(backend Backend) *Dispatcher {
	return &Dispatcher{backend: backend, scanning: make(map[string]bool)}
}

// Search resolves a free-text query (register number or phone, the
// backend tells them apart) to zero or more results.
func (d *Dispatcher) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "required"}
	}
	records, err := d.backend.SearchPickup(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		results = append(results, Result{Record: rec, Next: ActionFor(rec.Status)})
	}
	return results, nil
}

// Approve transitions a record to APPROVED and returns the re-searched
// result set for the same query.
func (d *Dispatcher) Approve(ctx context.Context, query, regNo, facultyName string) ([]Result, error) {
	if regNo == "" {
		return nil, &ValidationError{Field: "regNo", Reason: "required"}
	}
	if facultyName == "" {
		return nil, &ValidationError{Field: "facultyName", Reason: "required"}
	}
	if err := d.backend.ApprovePickup(ctx, regNo, facultyName); err != nil {
		return nil, err
	}
	return d.Search(ctx, query)
}

// MarkPicked finalizes a record and returns the re-searched result set.
func (d *Dispatcher) MarkPicked(ctx context.Context, query, regNo string) ([]Result, error) {
	if regNo == "" {
		return nil, &ValidationError{Field: "regNo", Reason: "required"}
	}
	if err := d.backend.MarkPicked(ctx, regNo); err != nil {
		return nil, err
	}
	return d.Search(ctx, query)
}

// HandleScan feeds a scanner-decoded query through the same search path
// as manual entry, exactly once per decode. A decode arriving while the
// identical text is still in flight is dropped; ok reports whether this
// call ran the search.
func (d *Dispatcher) HandleScan(ctx context.Context, decoded string) (results []Result, ok bool, err error) {
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return nil, false, &ValidationError{Field: "query", Reason: "required"}
	}

	d.mu.Lock()
	if d.scanning[decoded] {
		d.mu.Unlock()
		return nil, false, nil
	}
	d.scanning[decoded] = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.scanning, decoded)
		d.mu.Unlock()
	}()

	results, err = d.Search(ctx, decoded)
	return results, true, err
}
