package vkauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditLoginSuccess           = "login_success"
	auditLoginFailure           = "login_failure"
	auditLoginRateLimited       = "login_rate_limited"
	auditTwoFactorRequired      = "two_factor_required"
	auditTwoFactorSuccess       = "two_factor_success"
	auditTwoFactorFailure       = "two_factor_failure"
	auditTwoFactorExceeded      = "two_factor_attempts_exceeded"
	auditEnrollmentStarted      = "totp_enrollment_started"
	auditEnrollmentConfirmed    = "totp_enrollment_confirmed"
	auditTOTPDisabled           = "totp_disabled"
	auditBackupCodesRegenerated = "backup_codes_regenerated"
	auditBackupCodeUsed         = "backup_code_used"
	auditSwitchToCandidate      = "switch_to_candidate"
	auditSwitchBack             = "switch_back"
	auditSwitchDenied           = "switch_denied"
	auditLogoutSession          = "logout_session"
	auditLogoutAll              = "logout_all"
)

// AuditErrorCode is an exported constant or variable used by the
// authentication engine.
type AuditErrorCode string

const (
	AuditErrNone               AuditErrorCode = ""
	AuditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	AuditErrInvalidCode        AuditErrorCode = "invalid_two_factor_code"
	AuditErrRateLimited        AuditErrorCode = "rate_limited"
	AuditErrChallengeExpired   AuditErrorCode = "challenge_expired"
	AuditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	AuditErrEnrollmentExpired  AuditErrorCode = "enrollment_expired"
	AuditErrNotAuthorized      AuditErrorCode = "not_authorized"
	AuditErrSwitchState        AuditErrorCode = "invalid_switch_state"
	AuditErrCandidateNotFound  AuditErrorCode = "candidate_not_found"
	AuditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	AuditErrBackend            AuditErrorCode = "backend_unavailable"
	AuditErrInternal           AuditErrorCode = "internal"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return AuditErrNone
	case errors.Is(err, ErrInvalidCredentials):
		return AuditErrInvalidCredentials
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return AuditErrInvalidCode
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrTwoFactorRateLimited):
		return AuditErrRateLimited
	case errors.Is(err, ErrChallengeExpired):
		return AuditErrChallengeExpired
	case errors.Is(err, ErrChallengeAttemptsExceeded):
		return AuditErrAttemptsExceeded
	case errors.Is(err, ErrEnrollmentExpired):
		return AuditErrEnrollmentExpired
	case errors.Is(err, ErrNotAuthorizedToSwitch):
		return AuditErrNotAuthorized
	case errors.Is(err, ErrNotInSwitchedState), errors.Is(err, ErrInvalidSwitchState):
		return AuditErrSwitchState
	case errors.Is(err, ErrCandidateNotFound):
		return AuditErrCandidateNotFound
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrTokenInvalid):
		return AuditErrUnauthenticated
	case errors.Is(err, ErrSessionUnavailable), errors.Is(err, ErrTwoFactorUnavailable):
		return AuditErrBackend
	default:
		return AuditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		SessionID:  sessionID,
		IP:         ClientIPFromContext(ctx),
		UserAgent:  UserAgentFromContext(ctx),
		Success:    success,
	}
	if code := auditErrorCode(err); code != AuditErrNone {
		event.Error = string(code)
	}
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}

	e.audit.Emit(event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, identityID string) {
	e.emitAudit(ctx, auditLoginRateLimited, false, identityID, "", ErrLoginRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}
