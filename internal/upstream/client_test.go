package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pickupdesk/internal/pickup"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func decodeAction(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return payload
}

func TestStudentLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload := decodeAction(t, r)
		if payload["action"] != "studentLogin" || payload["regNo"] != "2026A1" || payload["dob"] != "01-01-2015" {
			t.Errorf("unexpected payload: %v", payload)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success", "regNo": "2026A1", "name": "Asha",
			"class": "5", "section": "A", "photo": "https://x/p.jpg", "registered": "NO",
		})
	})

	student, err := c.StudentLogin(context.Background(), "2026A1", "01-01-2015")
	if err != nil {
		t.Fatalf("StudentLogin: %v", err)
	}
	if student.Name != "Asha" || student.Registered != "NO" {
		t.Errorf("student = %+v", student)
	}
}

func TestStudentLoginRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "invalid"})
	})
	_, err := c.StudentLogin(context.Background(), "2026A1", "wrong")
	var rej *pickup.RejectionError
	if !errors.As(err, &rej) || rej.Status != "invalid" {
		t.Fatalf("want rejection with backend status, got %v", err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := New(srv.URL, time.Second)

	_, err := c.SearchPickup(context.Background(), "2026A1")
	if !errors.Is(err, pickup.ErrNetwork) {
		t.Fatalf("want ErrNetwork, got %v", err)
	}
}

func TestHTTPErrorIsNetworkError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	})
	err := c.MarkPicked(context.Background(), "2026A1")
	if !errors.Is(err, pickup.ErrNetwork) {
		t.Fatalf("want ErrNetwork, got %v", err)
	}
}

func TestSearchPickupDataArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload := decodeAction(t, r)
		if payload["regNo"] != "9876543210" {
			t.Errorf("query sent as %v", payload["regNo"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "found",
			"data": []map[string]any{{
				"regNo": "2026A1", "pickupName": "Ravi", "relation": "Father",
				"phone": "9876543210", "pickupPhoto": "https://x/r.jpg",
				"statusPickup": "REGISTERED",
			}},
		})
	})

	records, err := c.SearchPickup(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("SearchPickup: %v", err)
	}
	if len(records) != 1 || records[0].Status != pickup.StatusRegistered {
		t.Fatalf("records = %+v", records)
	}
}

func TestSearchPickupFlatFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "found", "regNo": "2026A1", "pickupName": "Ravi",
			"statusPickup": "APPROVED", "approvedBy": "Ms. Lata",
		})
	})

	records, err := c.SearchPickup(context.Background(), "2026A1")
	if err != nil {
		t.Fatalf("SearchPickup: %v", err)
	}
	if len(records) != 1 || records[0].ApprovedBy != "Ms. Lata" {
		t.Fatalf("records = %+v", records)
	}
}

func TestSearchPickupNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "not_found"})
	})
	records, err := c.SearchPickup(context.Background(), "0000000000")
	if err != nil {
		t.Fatalf("zero matches is not an error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %+v", records)
	}
}

func TestApproveAndMarkPickedStatuses(t *testing.T) {
	var gotAction string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload := decodeAction(t, r)
		gotAction, _ = payload["action"].(string)
		switch gotAction {
		case "approvePickup":
			if payload["facultyName"] != "Ms. Lata" {
				t.Errorf("facultyName = %v", payload["facultyName"])
			}
			json.NewEncoder(w).Encode(map[string]any{"status": "approved"})
		case "markPicked":
			json.NewEncoder(w).Encode(map[string]any{"status": "picked"})
		default:
			t.Errorf("unexpected action %q", gotAction)
		}
	})

	if err := c.ApprovePickup(context.Background(), "2026A1", "Ms. Lata"); err != nil {
		t.Fatalf("ApprovePickup: %v", err)
	}
	if err := c.MarkPicked(context.Background(), "2026A1"); err != nil {
		t.Fatalf("MarkPicked: %v", err)
	}
}

func TestRegisterPickupAlreadyRegistered(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "already_registered"})
	})
	err := c.RegisterPickup(context.Background(), pickup.Registration{RegNo: "2026A1"})
	var rej *pickup.RejectionError
	if !errors.As(err, &rej) || rej.Status != "already_registered" {
		t.Fatalf("want already_registered rejection, got %v", err)
	}
}

func TestNotRegistered(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload := decodeAction(t, r)
		if payload["action"] != "getNotRegistered" {
			t.Errorf("action = %v", payload["action"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   []map[string]any{{"regNo": "2026B7", "name": "Vikram"}},
		})
	})

	students, err := c.NotRegistered(context.Background())
	if err != nil {
		t.Fatalf("NotRegistered: %v", err)
	}
	if len(students) != 1 || students[0].RegNo != "2026B7" {
		t.Fatalf("students = %+v", students)
	}
}
