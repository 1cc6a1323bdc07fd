package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, exp, err := Issue("sid-1", RoleStaff, "pickupdesk", "secret", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Error("expiry not in the future")
	}

	claims, err := Parse(token, "secret", "pickupdesk")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "sid-1" || claims.Role != RoleStaff {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseWrongKey(t *testing.T) {
	token, _, _ := Issue("sid-1", RoleParent, "pickupdesk", "secret", time.Hour)
	if _, err := Parse(token, "other", "pickupdesk"); err == nil {
		t.Fatal("token signed with another key must not parse")
	}
}

func TestParseIssuerMismatch(t *testing.T) {
	token, _, _ := Issue("sid-1", RoleParent, "someone-else", "secret", time.Hour)
	if _, err := Parse(token, "secret", "pickupdesk"); err == nil {
		t.Fatal("issuer mismatch must fail")
	}
}

func TestParseExpired(t *testing.T) {
	token, _, _ := Issue("sid-1", RoleParent, "pickupdesk", "secret", -time.Minute)
	if _, err := Parse(token, "secret", "pickupdesk"); err == nil {
		t.Fatal("expired token must fail")
	}
}
