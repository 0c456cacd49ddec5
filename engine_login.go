package vkauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vkportal/vkauth/internal"
	"github.com/vkportal/vkauth/internal/rate"
	"github.com/vkportal/vkauth/jwt"
	"github.com/vkportal/vkauth/session"
)

// Login authenticates a login/password pair against both identity variants.
//
// The returned [LoginResult] either carries a signed token (login complete)
// or TwoFactorRequired with a challenge ID to be finished via
// [Engine.Verify2FA]. Unknown logins, wrong passwords, and disabled accounts
// all fail with [ErrInvalidCredentials] after a dummy hash verification, so
// the caller cannot distinguish them by error or by timing.
func (e *Engine) Login(ctx context.Context, login, pass string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	login = strings.ToLower(strings.TrimSpace(login))
	ip := ClientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, login, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metrics.Inc(MetricLoginRateLimited)
			e.metrics.Inc(MetricRateLimitHit)
			e.emitRateLimit(ctx, "login", "")
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	if login == "" || pass == "" {
		e.passwordHash.DummyVerify(pass)
		return nil, e.failLogin(ctx, login, ip, "")
	}

	staff, err := e.identityStore.FindStaffByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if staff != nil {
		return e.loginStaff(ctx, login, pass, ip, staff)
	}

	candidate, err := e.identityStore.FindCandidateByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if candidate != nil {
		return e.loginCandidate(ctx, login, pass, ip, candidate)
	}

	// Unknown login burns the same argon2 work as a real verification.
	e.passwordHash.DummyVerify(pass)
	return nil, e.failLogin(ctx, login, ip, "")
}

func (e *Engine) loginStaff(ctx context.Context, login, pass, ip string, staff *StaffIdentity) (*LoginResult, error) {
	ok, err := e.passwordHash.Verify(pass, staff.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, login, ip, staff.ID)
	}
	if !staff.Active || staff.Deleted {
		return nil, e.failLogin(ctx, login, ip, staff.ID)
	}

	if e.config.TOTP.Enabled && staff.TwoFactor.Enabled {
		challengeID := uuid.NewString()
		challenge := &twoFactorChallenge{
			IdentityID: staff.ID,
			Login:      login,
			ExpiresAt:  time.Now().Add(e.config.TOTP.ChallengeTTL).Unix(),
		}
		if err := e.challengeStore.Save(ctx, challengeID, challenge, e.config.TOTP.ChallengeTTL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
		}

		_ = e.rateLimiter.ResetLogin(ctx, login, ip)
		e.metrics.Inc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditTwoFactorRequired, true, staff.ID, "", nil, nil)
		return &LoginResult{TwoFactorRequired: true, ChallengeID: challengeID}, nil
	}

	result, err := e.issueStaffSession(ctx, staff)
	if err != nil {
		return nil, err
	}

	_ = e.rateLimiter.ResetLogin(ctx, login, ip)
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLoginSuccess, true, staff.ID, result.SessionID, nil, nil)
	return result, nil
}

func (e *Engine) loginCandidate(ctx context.Context, login, pass, ip string, candidate *CandidateIdentity) (*LoginResult, error) {
	ok, err := e.passwordHash.Verify(pass, candidate.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, login, ip, candidate.ID)
	}
	if candidate.Archived {
		return nil, e.failLogin(ctx, login, ip, candidate.ID)
	}

	result, err := e.issueCandidateSession(ctx, candidate)
	if err != nil {
		return nil, err
	}

	_ = e.rateLimiter.ResetLogin(ctx, login, ip)
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLoginSuccess, true, candidate.ID, result.SessionID, nil, nil)
	return result, nil
}

// Verify2FA finishes a two-phase staff login. code is either a live TOTP
// code (all digits) or a backup code; backup codes are consumed on use.
func (e *Engine) Verify2FA(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.challengeStore.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) || errors.Is(err, ErrChallengeExpired) {
			return nil, ErrChallengeExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}

	if err := e.totpLimiter.Check(ctx, challenge.IdentityID); err != nil {
		if errors.Is(err, ErrTwoFactorRateLimited) {
			e.metrics.Inc(MetricRateLimitHit)
			e.emitAudit(ctx, auditTwoFactorFailure, false, challenge.IdentityID, "", err, nil)
		}
		return nil, err
	}

	staff, err := e.identityStore.FindStaffByID(ctx, challenge.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if staff == nil || !staff.Active || staff.Deleted || !staff.TwoFactor.Enabled {
		// The account changed under the challenge; invalidate it.
		_, _ = e.challengeStore.Delete(ctx, challengeID)
		return nil, ErrChallengeExpired
	}

	verified, usedBackup, err := e.verifySecondFactor(ctx, staff, code)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, e.failSecondFactor(ctx, challengeID, staff.ID)
	}

	// Delete is the challenge's single-use gate: losing the race means the
	// code was already redeemed.
	deleted, err := e.challengeStore.Delete(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if !deleted {
		return nil, ErrChallengeExpired
	}

	result, err := e.issueStaffSession(ctx, staff)
	if err != nil {
		return nil, err
	}

	_ = e.totpLimiter.Reset(ctx, staff.ID)
	_ = e.rateLimiter.ResetLogin(ctx, challenge.Login, ClientIPFromContext(ctx))

	e.metrics.Inc(MetricTwoFactorSuccess)
	e.metrics.Inc(MetricLoginSuccess)
	if usedBackup {
		e.metrics.Inc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditBackupCodeUsed, true, staff.ID, result.SessionID, nil, nil)
	}
	e.emitAudit(ctx, auditTwoFactorSuccess, true, staff.ID, result.SessionID, nil, nil)
	return result, nil
}

// verifySecondFactor tries the live TOTP path for digit strings of the
// configured length and the backup-code path for everything else.
func (e *Engine) verifySecondFactor(ctx context.Context, staff *StaffIdentity, code string) (verified, usedBackup bool, err error) {
	trimmed := strings.TrimSpace(code)

	if len(trimmed) == e.config.TOTP.Digits && isNumericString(trimmed) {
		ok, counter, verr := e.totp.VerifyCode(staff.TwoFactor.Secret, trimmed, time.Now())
		if verr != nil {
			return false, false, verr
		}
		if ok && e.config.TOTP.EnforceReplayProtection {
			if counter <= staff.TwoFactor.LastUsedCounter {
				return false, false, nil
			}
			if uerr := e.identityStore.UpdateTwoFactorLastUsedCounter(ctx, staff.ID, counter); uerr != nil {
				return false, false, fmt.Errorf("replay counter update: %w", uerr)
			}
		}
		return ok, false, nil
	}

	canonical := internal.CanonicalizeBackupCode(trimmed)
	if canonical == "" {
		return false, false, nil
	}
	hash := internal.BackupCodeHash(staff.ID, canonical)
	used, cerr := e.identityStore.ConsumeBackupCode(ctx, staff.ID, hash)
	if cerr != nil {
		return false, false, fmt.Errorf("backup code lookup: %w", cerr)
	}
	if !used {
		e.metrics.Inc(MetricBackupCodeFailed)
	}
	return used, used, nil
}

func (e *Engine) failSecondFactor(ctx context.Context, challengeID, identityID string) error {
	exceeded, err := e.challengeStore.RecordFailure(ctx, challengeID, e.config.TOTP.ChallengeMaxAttempts)
	if err != nil && !errors.Is(err, ErrChallengeExpired) && !errors.Is(err, errChallengeNotFound) {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	_ = e.totpLimiter.RecordFailure(ctx, identityID)

	e.metrics.Inc(MetricTwoFactorFailure)
	if exceeded {
		e.emitAudit(ctx, auditTwoFactorExceeded, false, identityID, "", ErrChallengeAttemptsExceeded, nil)
		return ErrChallengeAttemptsExceeded
	}
	e.emitAudit(ctx, auditTwoFactorFailure, false, identityID, "", ErrInvalidTwoFactorCode, nil)
	return ErrInvalidTwoFactorCode
}

func (e *Engine) failLogin(ctx context.Context, login, ip, identityID string) error {
	_ = e.rateLimiter.IncrementLogin(ctx, login, ip)
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, auditLoginFailure, false, identityID, "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) issueStaffSession(ctx context.Context, staff *StaffIdentity) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	lifetime := e.sessionLifetime()
	rec := &session.Record{
		SessionID:    sid.String(),
		IdentityID:   staff.ID,
		IdentityType: session.IdentityStaff,
		Role:         string(staff.Role),
		CreatedAt:    now.Unix(),
		LastSeenAt:   now.Unix(),
		ExpiresAt:    now.Add(lifetime).Unix(),
	}
	if err := e.sessionStore.Save(ctx, rec, lifetime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	claims := jwt.SessionClaims{
		Kind:  jwt.KindStaff,
		SID:   sid.String(),
		Role:  string(staff.Role),
		Login: staff.Username,
	}
	claims.Subject = staff.ID

	token, err := e.jwtManager.Issue(claims)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSessionCreated)
	return &LoginResult{Token: token, SessionID: sid.String()}, nil
}

func (e *Engine) issueCandidateSession(ctx context.Context, candidate *CandidateIdentity) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	lifetime := e.sessionLifetime()
	rec := &session.Record{
		SessionID:    sid.String(),
		IdentityID:   candidate.ID,
		IdentityType: session.IdentityCandidate,
		ProcessID:    candidate.ProcessID,
		CreatedAt:    now.Unix(),
		LastSeenAt:   now.Unix(),
		ExpiresAt:    now.Add(lifetime).Unix(),
	}
	if err := e.sessionStore.Save(ctx, rec, lifetime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	claims := jwt.SessionClaims{
		Kind:        jwt.KindCandidate,
		SID:         sid.String(),
		CandidateID: candidate.ExternalID,
		ProcessID:   candidate.ProcessID,
		Name:        candidate.DisplayName,
	}
	claims.Subject = candidate.ID

	token, err := e.jwtManager.Issue(claims)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSessionCreated)
	return &LoginResult{Token: token, SessionID: sid.String()}, nil
}
