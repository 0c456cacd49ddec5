package vkauth

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidTwoFactorCode is an exported constant or variable used by the authentication engine.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrNotAuthorizedToSwitch is an exported constant or variable used by the authentication engine.
	ErrNotAuthorizedToSwitch = errors.New("not authorized to switch identity")
	// ErrNotInSwitchedState is an exported constant or variable used by the authentication engine.
	ErrNotInSwitchedState = errors.New("not in switched state")
	// ErrInvalidSwitchState is an exported constant or variable used by the authentication engine.
	ErrInvalidSwitchState = errors.New("invalid switch state")
	// ErrUnauthenticated is an exported constant or variable used by the authentication engine.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionRevoked is an exported constant or variable used by the authentication engine.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionUnavailable is an exported constant or variable used by the authentication engine.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrCandidateNotFound is an exported constant or variable used by the authentication engine.
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrLoginRateLimited is an exported constant or variable used by the authentication engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTwoFactorRateLimited is an exported constant or variable used by the authentication engine.
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	// ErrTwoFactorDisabled is an exported constant or variable used by the authentication engine.
	ErrTwoFactorDisabled = errors.New("two-factor authentication disabled")
	// ErrTwoFactorAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorUnavailable is an exported constant or variable used by the authentication engine.
	ErrTwoFactorUnavailable = errors.New("two-factor backend unavailable")
	// ErrChallengeExpired is an exported constant or variable used by the authentication engine.
	ErrChallengeExpired = errors.New("two-factor challenge expired")
	// ErrChallengeAttemptsExceeded is an exported constant or variable used by the authentication engine.
	ErrChallengeAttemptsExceeded = errors.New("two-factor challenge attempts exceeded")
	// ErrEnrollmentExpired is an exported constant or variable used by the authentication engine.
	ErrEnrollmentExpired = errors.New("two-factor enrollment expired")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrInvalidRouteMode is an exported constant or variable used by the authentication engine.
	ErrInvalidRouteMode = errors.New("invalid route validation mode")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
