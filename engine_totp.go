package vkauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vkportal/vkauth/internal"
)

// BeginTOTPEnrollment starts a two-factor enrollment for a staff identity.
// Nothing durable changes until [Engine.ConfirmTOTPEnrollment] succeeds; the
// pending secret lives in Redis under the enrollment TTL and a repeated call
// replaces it. Backup codes are returned exactly once, formatted for display.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, identityID string) (*TOTPEnrollment, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.TOTP.Enabled {
		return nil, ErrTwoFactorDisabled
	}

	staff, err := e.identityStore.FindStaffByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if staff == nil || !staff.Active || staff.Deleted {
		return nil, ErrUnauthenticated
	}
	if staff.TwoFactor.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	codes, hashes, err := e.newBackupCodes(staff.ID)
	if err != nil {
		return nil, err
	}

	enrollmentID := uuid.NewString()
	pending := &pendingEnrollment{
		EnrollmentID: enrollmentID,
		Secret:       secret,
		BackupHashes: hashes,
		ExpiresAt:    time.Now().Add(e.config.TOTP.EnrollmentTTL).Unix(),
	}
	if err := e.enrollmentStore.Save(ctx, identityID, pending, e.config.TOTP.EnrollmentTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}

	e.metrics.Inc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditEnrollmentStarted, true, staff.ID, "", nil, nil)

	return &TOTPEnrollment{
		EnrollmentID:    enrollmentID,
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, staff.Username),
		BackupCodes:     codes,
	}, nil
}

// ConfirmTOTPEnrollment proves the authenticator holds the pending secret
// and then persists secret, backup-code hashes, and the enabled flag in one
// atomic identity-store call.
func (e *Engine) ConfirmTOTPEnrollment(ctx context.Context, identityID, enrollmentID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	pending, err := e.enrollmentStore.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrEnrollmentExpired) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if pending.EnrollmentID != enrollmentID {
		return ErrEnrollmentExpired
	}

	if err := e.totpLimiter.Check(ctx, identityID); err != nil {
		return err
	}

	ok, _, err := e.totp.VerifyCode(pending.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		_ = e.totpLimiter.RecordFailure(ctx, identityID)
		e.emitAudit(ctx, auditTwoFactorFailure, false, identityID, "", ErrInvalidTwoFactorCode, nil)
		return ErrInvalidTwoFactorCode
	}

	if err := e.identityStore.PersistEnrollment(ctx, identityID, pending.Secret, pending.BackupHashes); err != nil {
		return fmt.Errorf("persist enrollment: %w", err)
	}
	_ = e.enrollmentStore.Delete(ctx, identityID)
	_ = e.totpLimiter.Reset(ctx, identityID)

	e.metrics.Inc(MetricEnrollmentConfirmed)
	e.emitAudit(ctx, auditEnrollmentConfirmed, true, identityID, "", nil, nil)
	return nil
}

// DisableTOTP turns two-factor off for the identity and revokes all of its
// other sessions. The session named by currentSessionID survives so the
// caller is not logged out by their own request.
func (e *Engine) DisableTOTP(ctx context.Context, identityID, currentSessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	staff, err := e.identityStore.FindStaffByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("identity lookup: %w", err)
	}
	if staff == nil || !staff.Active || staff.Deleted {
		return ErrUnauthenticated
	}
	if !staff.TwoFactor.Enabled {
		return ErrTwoFactorDisabled
	}

	if err := e.identityStore.DisableTwoFactor(ctx, identityID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	removed, err := e.sessionStore.DeleteAllForIdentity(ctx, identityID, currentSessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	e.metrics.Inc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditTOTPDisabled, true, identityID, currentSessionID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": fmt.Sprintf("%d", removed)}
	})
	return nil
}

// RegenerateBackupCodes replaces the identity's remaining backup codes with
// a fresh set after verifying a live TOTP code. The new codes are returned
// formatted, exactly once.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, identityID, totpCode string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	staff, err := e.identityStore.FindStaffByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if staff == nil || !staff.Active || staff.Deleted {
		return nil, ErrUnauthenticated
	}
	if !staff.TwoFactor.Enabled {
		return nil, ErrTwoFactorDisabled
	}

	if err := e.totpLimiter.Check(ctx, identityID); err != nil {
		return nil, err
	}

	ok, counter, err := e.totp.VerifyCode(staff.TwoFactor.Secret, totpCode, time.Now())
	if err != nil {
		return nil, err
	}
	if ok && e.config.TOTP.EnforceReplayProtection {
		if counter <= staff.TwoFactor.LastUsedCounter {
			ok = false
		} else if uerr := e.identityStore.UpdateTwoFactorLastUsedCounter(ctx, identityID, counter); uerr != nil {
			return nil, fmt.Errorf("replay counter update: %w", uerr)
		}
	}
	if !ok {
		_ = e.totpLimiter.RecordFailure(ctx, identityID)
		e.emitAudit(ctx, auditTwoFactorFailure, false, identityID, "", ErrInvalidTwoFactorCode, nil)
		return nil, ErrInvalidTwoFactorCode
	}

	codes, hashes, err := e.newBackupCodes(identityID)
	if err != nil {
		return nil, err
	}
	if err := e.identityStore.ReplaceBackupCodes(ctx, identityID, hashes); err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}
	_ = e.totpLimiter.Reset(ctx, identityID)

	e.metrics.Inc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditBackupCodesRegenerated, true, identityID, "", nil, nil)
	return codes, nil
}

// newBackupCodes generates the configured number of codes and their
// identity-bound hashes. Returned codes are display-formatted; hashes are
// computed over the canonical form.
func (e *Engine) newBackupCodes(identityID string) ([]string, [][32]byte, error) {
	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		raw, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, internal.FormatBackupCode(raw))
		hashes = append(hashes, internal.BackupCodeHash(identityID, raw))
	}
	return codes, hashes, nil
}
