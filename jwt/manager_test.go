package jwt

import (
	"errors"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-secret"),
		Issuer:        "vkauth-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func staffClaims() SessionClaims {
	claims := SessionClaims{
		Kind:  KindStaff,
		SID:   "sid-1",
		Role:  "ADMIN",
		Login: "alice@example.com",
	}
	claims.Subject = "staff-1"
	return claims
}

func TestIssueAndParseStaffToken(t *testing.T) {
	m := testManager(t)

	token, err := m.Issue(staffClaims())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parsed, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Kind != KindStaff || parsed.Subject != "staff-1" || parsed.SID != "sid-1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.Role != "ADMIN" || parsed.Login != "alice@example.com" {
		t.Fatalf("unexpected staff fields: %+v", parsed)
	}
	if parsed.Switch != nil {
		t.Fatal("expected no switch context on a direct token")
	}
	if parsed.Issuer != "vkauth-test" {
		t.Fatalf("unexpected issuer: %s", parsed.Issuer)
	}
}

func TestIssueRejectsUnknownKind(t *testing.T) {
	m := testManager(t)

	claims := staffClaims()
	claims.Kind = "robot"
	if _, err := m.Issue(claims); err == nil {
		t.Fatal("expected error for unknown identity kind")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     time.Nanosecond,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-secret"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.Issue(staffClaims())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired token rejected")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	m := testManager(t)

	token, err := m.Issue(staffClaims())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := m.Parse(tampered); err == nil {
		t.Fatal("expected tampered token rejected")
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	m := testManager(t)
	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("other-secret"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := other.Issue(staffClaims())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected foreign-key token rejected")
	}
}

func TestReissueWithSwitchCarriesOrigin(t *testing.T) {
	m := testManager(t)

	current := staffClaims()
	token, err := m.ReissueWithSwitch(&current, "cand-1", "vk-001", "proc-1", "Jana Kovac")
	if err != nil {
		t.Fatalf("ReissueWithSwitch failed: %v", err)
	}

	parsed, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Kind != KindCandidate || parsed.Subject != "cand-1" {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.SID != "sid-1" {
		t.Fatalf("expected session preserved, got %s", parsed.SID)
	}
	if parsed.CandidateID != "vk-001" || parsed.ProcessID != "proc-1" || parsed.Name != "Jana Kovac" {
		t.Fatalf("unexpected candidate fields: %+v", parsed)
	}
	if parsed.Switch == nil {
		t.Fatal("expected switch context")
	}
	if parsed.Switch.StaffID != "staff-1" || parsed.Switch.Role != "ADMIN" || parsed.Switch.Login != "alice@example.com" {
		t.Fatalf("unexpected switch context: %+v", parsed.Switch)
	}
}

func TestReissueWithSwitchRejectsNesting(t *testing.T) {
	m := testManager(t)

	current := staffClaims()
	token, err := m.ReissueWithSwitch(&current, "cand-1", "vk-001", "proc-1", "Jana Kovac")
	if err != nil {
		t.Fatalf("ReissueWithSwitch failed: %v", err)
	}
	switched, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := m.ReissueWithSwitch(switched, "cand-2", "vk-002", "proc-1", "X"); !errors.Is(err, ErrSwitchContextPresent) {
		t.Fatalf("expected ErrSwitchContextPresent, got %v", err)
	}
}

func TestReissueWithoutSwitchRestoresStaffVerbatim(t *testing.T) {
	m := testManager(t)

	current := staffClaims()
	token, err := m.ReissueWithSwitch(&current, "cand-1", "vk-001", "proc-1", "Jana Kovac")
	if err != nil {
		t.Fatalf("ReissueWithSwitch failed: %v", err)
	}
	switched, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	restoredToken, err := m.ReissueWithoutSwitch(switched)
	if err != nil {
		t.Fatalf("ReissueWithoutSwitch failed: %v", err)
	}
	restored, err := m.Parse(restoredToken)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if restored.Kind != KindStaff || restored.Subject != "staff-1" {
		t.Fatalf("unexpected restored claims: %+v", restored)
	}
	if restored.Role != "ADMIN" || restored.Login != "alice@example.com" || restored.SID != "sid-1" {
		t.Fatalf("expected staff claims restored verbatim: %+v", restored)
	}
	if restored.Switch != nil || restored.CandidateID != "" || restored.ProcessID != "" || restored.Name != "" {
		t.Fatalf("expected candidate residue cleared: %+v", restored)
	}
}

func TestReissueWithoutSwitchOnDirectToken(t *testing.T) {
	m := testManager(t)

	current := staffClaims()
	if _, err := m.ReissueWithoutSwitch(&current); !errors.Is(err, ErrSwitchContextMissing) {
		t.Fatalf("expected ErrSwitchContextMissing, got %v", err)
	}
}

func TestReissueWithSwitchRejectsCandidateSource(t *testing.T) {
	m := testManager(t)

	claims := SessionClaims{
		Kind:        KindCandidate,
		SID:         "sid-1",
		CandidateID: "vk-001",
	}
	claims.Subject = "cand-1"

	if _, err := m.ReissueWithSwitch(&claims, "cand-2", "vk-002", "proc-1", "X"); err == nil {
		t.Fatal("expected error for candidate switch source")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected error for zero TTL")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected error for hs256 without key")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected error for ed25519 without verify key")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
