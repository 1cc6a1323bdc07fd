package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pickupdesk/internal/metrics"
	"pickupdesk/internal/pickup"
)

// Client talks to the remote pickup service: one endpoint, POST, JSON
// body {action, ...params}, JSON response {status, ...fields}.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// call posts one action and decodes the response into out (which may be
// nil). The response status string is always returned so each action
// can check its own success value.
func (c *Client) call(ctx context.Context, action string, params map[string]any, out any) (string, error) {
	payload := map[string]any{"action": action}
	for k, v := range params {
		payload[k] = v
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(action, "network_error").Inc()
		return "", fmt.Errorf("%w: %v", pickup.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(action, "network_error").Inc()
		return "", fmt.Errorf("%w: read response: %v", pickup.ErrNetwork, err)
	}
	if resp.StatusCode >= 300 {
		metrics.UpstreamCalls.WithLabelValues(action, "http_error").Inc()
		return "", fmt.Errorf("%w: %s: %s", pickup.ErrNetwork, resp.Status, string(raw))
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		metrics.UpstreamCalls.WithLabelValues(action, "bad_response").Inc()
		return "", fmt.Errorf("%w: decode response: %v", pickup.ErrNetwork, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			metrics.UpstreamCalls.WithLabelValues(action, "bad_response").Inc()
			return "", fmt.Errorf("%w: decode response: %v", pickup.ErrNetwork, err)
		}
	}
	metrics.UpstreamCalls.WithLabelValues(action, status.Status).Inc()
	return status.Status, nil
}

// StudentLogin verifies a register number and date of birth. The student
// fields come back at the top level of the response.
func (c *Client) StudentLogin(ctx context.Context, regNo, dob string) (pickup.StudentRecord, error) {
	var student pickup.StudentRecord
	status, err := c.call(ctx, "studentLogin", map[string]any{"regNo": regNo, "dob": dob}, &student)
	if err != nil {
		return pickup.StudentRecord{}, err
	}
	if status != "success" {
		return pickup.StudentRecord{}, &pickup.RejectionError{Action: "studentLogin", Status: status}
	}
	return student, nil
}

// StaffLogin verifies staff credentials and returns the faculty name.
func (c *Client) StaffLogin(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Faculty string `json:"faculty"`
	}
	status, err := c.call(ctx, "staffLogin", map[string]any{"username": username, "password": password}, &out)
	if err != nil {
		return "", err
	}
	if status != "success" {
		return "", &pickup.RejectionError{Action: "staffLogin", Status: status}
	}
	return out.Faculty, nil
}

// RegisterPickup submits a pickup registration.
func (c *Client) RegisterPickup(ctx context.Context, reg pickup.Registration) error {
	status, err := c.call(ctx, "registerPickup", map[string]any{
		"regNo":       reg.RegNo,
		"studentName": reg.StudentName,
		"pickupName":  reg.PickupName,
		"relation":    reg.Relation,
		"phone":       reg.Phone,
		"pickupPhoto": reg.PickupPhoto,
	}, nil)
	if err != nil {
		return err
	}
	if status != "success" {
		return &pickup.RejectionError{Action: "registerPickup", Status: status}
	}
	return nil
}

// SearchPickup resolves a register number or phone number to matching
// records. Zero matches is not an error; the caller gets an empty set.
// Older deployments answer with the record flat at the top level
// instead of a data array, so both shapes are accepted.
func (c *Client) SearchPickup(ctx context.Context, query string) ([]pickup.PickupRecord, error) {
	var out struct {
		Data []pickup.PickupRecord `json:"data"`
		pickup.PickupRecord
	}
	status, err := c.call(ctx, "searchPickup", map[string]any{"regNo": query}, &out)
	if err != nil {
		return nil, err
	}
	if status != "found" {
		return nil, nil
	}
	if len(out.Data) > 0 {
		return out.Data, nil
	}
	if out.PickupRecord.PickupName != "" || out.PickupRecord.RegNo != "" {
		return []pickup.PickupRecord{out.PickupRecord}, nil
	}
	return nil, nil
}

// ApprovePickup moves a record to APPROVED, recording who approved it.
func (c *Client) ApprovePickup(ctx context.Context, regNo, facultyName string) error {
	status, err := c.call(ctx, "approvePickup", map[string]any{"regNo": regNo, "facultyName": facultyName}, nil)
	if err != nil {
		return err
	}
	if status != "approved" {
		return &pickup.RejectionError{Action: "approvePickup", Status: status}
	}
	return nil
}

// MarkPicked finalizes a record as PICKED.
func (c *Client) MarkPicked(ctx context.Context, regNo string) error {
	status, err := c.call(ctx, "markPicked", map[string]any{"regNo": regNo}, nil)
	if err != nil {
		return err
	}
	if status != "picked" {
		return &pickup.RejectionError{Action: "markPicked", Status: status}
	}
	return nil
}

// NotRegistered lists students who have no pickup record yet.
func (c *Client) NotRegistered(ctx context.Context) ([]pickup.StudentRecord, error) {
	var out struct {
		Data []pickup.StudentRecord `json:"data"`
	}
	status, err := c.call(ctx, "getNotRegistered", nil, &out)
	if err != nil {
		return nil, err
	}
	if status != "success" && status != "found" {
		return nil, &pickup.RejectionError{Action: "getNotRegistered", Status: status}
	}
	return out.Data, nil
}
