package vkauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func auditTestConfig() Config {
	cfg := loginTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = true
	return cfg
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := loginTestConfig()
	cfg.Audit.Enabled = false
	store := newMockIdentityStore()
	seedStaff(store, cfg, t, "staff-1", "alice@example.com", RoleGestor, "correct-password")

	sink := &countingSink{}
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_, _ = engine.Login(WithClientIP(context.Background(), "203.0.113.1"), "alice@example.com", "wrong-password")
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditLoginEventsReachSink(t *testing.T) {
	cfg := auditTestConfig()
	store := newMockIdentityStore()
	seedStaff(store, cfg, t, "staff-1", "alice@example.com", RoleGestor, "correct-password")

	sink := NewChannelSink(16)
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	if _, err := engine.Login(ctx, "alice@example.com", "wrong-password"); err == nil {
		t.Fatal("expected login failure")
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditLoginFailure {
			t.Fatalf("expected %s, got %s", auditLoginFailure, event.EventType)
		}
		if event.Success {
			t.Fatal("expected failure event")
		}
		if event.Error != string(AuditErrInvalidCredentials) {
			t.Fatalf("expected invalid_credentials error code, got %q", event.Error)
		}
		if event.IP != "203.0.113.1" {
			t.Fatalf("expected client ip propagated, got %q", event.IP)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditLoginSuccess {
			t.Fatalf("expected %s, got %s", auditLoginSuccess, event.EventType)
		}
		if event.IdentityID != "staff-1" || event.SessionID == "" {
			t.Fatalf("unexpected event fields: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event is picked up by the worker and blocks on the gate; the
	// second fills the buffer; everything after that is dropped.
	for i := 0; i < 10; i++ {
		d.Emit(AuditEvent{EventType: auditLoginFailure})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.gate)
	d.Close()
}

func TestAuditCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 32, DropIfFull: false}, sink)

	for i := 0; i < 8; i++ {
		d.Emit(AuditEvent{EventType: auditLogoutSession})
	}
	d.Close()

	if sink.Count() != 8 {
		t.Fatalf("expected all buffered events delivered on close, got %d", sink.Count())
	}

	// Emit after close is a no-op.
	d.Emit(AuditEvent{EventType: auditLogoutSession})
	if sink.Count() != 8 {
		t.Fatal("expected no delivery after close")
	}
}

func TestJSONWriterSinkWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp:  time.Unix(1700000000, 0).UTC(),
		EventType:  auditLoginSuccess,
		IdentityID: "staff-1",
		Success:    true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Unix(1700000001, 0).UTC(),
		EventType: auditLoginFailure,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if event.EventType != auditLoginSuccess || event.IdentityID != "staff-1" || !event.Success {
		t.Fatalf("unexpected decoded event: %+v", event)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code AuditErrorCode
	}{
		{nil, AuditErrNone},
		{ErrInvalidCredentials, AuditErrInvalidCredentials},
		{ErrInvalidTwoFactorCode, AuditErrInvalidCode},
		{ErrLoginRateLimited, AuditErrRateLimited},
		{ErrTwoFactorRateLimited, AuditErrRateLimited},
		{ErrChallengeExpired, AuditErrChallengeExpired},
		{ErrChallengeAttemptsExceeded, AuditErrAttemptsExceeded},
		{ErrEnrollmentExpired, AuditErrEnrollmentExpired},
		{ErrNotAuthorizedToSwitch, AuditErrNotAuthorized},
		{ErrInvalidSwitchState, AuditErrSwitchState},
		{ErrNotInSwitchedState, AuditErrSwitchState},
		{ErrCandidateNotFound, AuditErrCandidateNotFound},
		{ErrUnauthenticated, AuditErrUnauthenticated},
		{ErrSessionRevoked, AuditErrUnauthenticated},
		{ErrSessionUnavailable, AuditErrBackend},
		{ErrTwoFactorUnavailable, AuditErrBackend},
	}

	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.code {
			t.Fatalf("auditErrorCode(%v) = %s, want %s", tc.err, got, tc.code)
		}
	}
}
