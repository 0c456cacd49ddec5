package vkauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vkportal/vkauth/internal"
)

func codeForNow(t *testing.T, secret []byte, cfg TOTPConfig) string {
	t.Helper()

	counter := time.Now().Unix() / int64(cfg.Period)
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func codeForOffset(t *testing.T, secret []byte, cfg TOTPConfig, offset int64) string {
	t.Helper()

	counter := (time.Now().Unix() / int64(cfg.Period)) + offset
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func seedTwoFactorStaff(store *mockIdentityStore, cfg Config, t *testing.T) []byte {
	t.Helper()

	secret := []byte("12345678901234567890")
	seedStaff(store, cfg, t, "staff-1", "alice@example.com", RoleAdmin, "correct-password")
	store.staff["staff-1"].TwoFactor = TwoFactorState{
		Enabled:         true,
		Secret:          secret,
		LastUsedCounter: -1,
	}
	return secret
}

func startChallenge(t *testing.T, engine *Engine) string {
	t.Helper()

	result, err := engine.Login(context.Background(), "alice@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.TwoFactorRequired {
		t.Fatal("expected a two-factor challenge")
	}
	return result.ChallengeID
}

func TestVerify2FASuccessIssuesSession(t *testing.T) {
	cfg := loginTestConfig()
	store := newMockIdentityStore()
	secret := seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	challengeID := startChallenge(t, engine)
	result, err := engine.Verify2FA(context.Background(), challengeID, codeForNow(t, secret, cfg.TOTP))
	if err != nil {
		t.Fatalf("Verify2FA failed: %v", err)
	}
	if result.Token == "" || result.SessionID == "" {
		t.Fatal("expected completed login")
	}

	auth, err := engine.Validate(context.Background(), result.Token, ModeStrict)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if auth.Kind != KindStaff || auth.IdentityID != "staff-1" {
		t.Fatalf("unexpected auth result: %+v", auth)
	}
}

func TestVerify2FAChallengeIsSingleUse(t *testing.T) {
	cfg := loginTestConfig()
	store := newMockIdentityStore()
	secret := seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	challengeID := startChallenge(t, engine)
	code := codeForNow(t, secret, cfg.TOTP)
	if _, err := engine.Verify2FA(context.Background(), challengeID, code); err != nil {
		t.Fatalf("Verify2FA failed: %v", err)
	}

	_, err := engine.Verify2FA(context.Background(), challengeID, code)
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired on challenge reuse, got %v", err)
	}
}

func TestVerify2FARejectsReplayedCode(t *testing.T) {
	cfg := loginTestConfig()
	store := newMockIdentityStore()
	secret := seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	code := codeForNow(t, secret, cfg.TOTP)
	if _, err := engine.Verify2FA(context.Background(), startChallenge(t, engine), code); err != nil {
		t.Fatalf("first Verify2FA failed: %v", err)
	}

	_, err := engine.Verify2FA(context.Background(), startChallenge(t, engine), code)
	if !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected replayed code rejected, got %v", err)
	}
}

func TestVerify2FAWrongCodeCountsAttempts(t *testing.T) {
	cfg := loginTestConfig()
	cfg.TOTP.ChallengeMaxAttempts = 2
	cfg.TOTP.AttemptLimit = 10
	store := newMockIdentityStore()
	seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	challengeID := startChallenge(t, engine)

	_, err := engine.Verify2FA(context.Background(), challengeID, "000000")
	if !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected ErrInvalidTwoFactorCode, got %v", err)
	}

	_, err = engine.Verify2FA(context.Background(), challengeID, "000000")
	if !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected ErrChallengeAttemptsExceeded, got %v", err)
	}

	// The challenge is consumed once the budget is spent.
	_, err = engine.Verify2FA(context.Background(), challengeID, "000000")
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired after exhaustion, got %v", err)
	}
}

func TestVerify2FARateLimitedPerIdentity(t *testing.T) {
	cfg := loginTestConfig()
	cfg.TOTP.AttemptLimit = 2
	cfg.TOTP.ChallengeMaxAttempts = 10
	store := newMockIdentityStore()
	seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	challengeID := startChallenge(t, engine)
	for i := 0; i < 2; i++ {
		if _, err := engine.Verify2FA(context.Background(), challengeID, "000000"); !errors.Is(err, ErrInvalidTwoFactorCode) {
			t.Fatalf("attempt %d: expected ErrInvalidTwoFactorCode, got %v", i, err)
		}
	}

	_, err := engine.Verify2FA(context.Background(), challengeID, "000000")
	if !errors.Is(err, ErrTwoFactorRateLimited) {
		t.Fatalf("expected ErrTwoFactorRateLimited, got %v", err)
	}
}

func TestVerify2FAUnknownChallengeExpired(t *testing.T) {
	cfg := loginTestConfig()
	store := newMockIdentityStore()
	seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	_, err := engine.Verify2FA(context.Background(), "no-such-challenge", "000000")
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestVerify2FAAcceptsBackupCodeOnce(t *testing.T) {
	cfg := loginTestConfig()
	store := newMockIdentityStore()
	seedTwoFactorStaff(store, cfg, t)

	backupCode := "ABCDE23456"
	store.backupCodes["staff-1"] = map[[32]byte]struct{}{
		internal.BackupCodeHash("staff-1", backupCode): {},
	}

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	formatted := internal.FormatBackupCode(backupCode)
	result, err := engine.Verify2FA(context.Background(), startChallenge(t, engine), formatted)
	if err != nil {
		t.Fatalf("Verify2FA with backup code failed: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected completed login")
	}

	_, err = engine.Verify2FA(context.Background(), startChallenge(t, engine), formatted)
	if !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected consumed backup code rejected, got %v", err)
	}
}

func TestVerify2FAAcceptsSkewedCode(t *testing.T) {
	cfg := loginTestConfig()
	cfg.TOTP.Skew = 1
	store := newMockIdentityStore()
	secret := seedTwoFactorStaff(store, cfg, t)

	engine, _, done := newLoginTestEngine(t, cfg, store)
	defer done()

	code := codeForOffset(t, secret, cfg.TOTP, -1)
	if _, err := engine.Verify2FA(context.Background(), startChallenge(t, engine), code); err != nil {
		t.Fatalf("expected previous-step code accepted, got %v", err)
	}
}
