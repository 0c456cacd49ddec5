package vkauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vkportal/vkauth/jwt"
	"github.com/vkportal/vkauth/session"
)

// SwitchToCandidate reissues a staff token as a candidate token carrying the
// originating staff identity in its switch context. The session is kept; only
// the token and the session record change. Switches never nest: a switched
// token fails with [ErrInvalidSwitchState]. Only roles with switch rights may
// call this; everyone else gets [ErrNotAuthorizedToSwitch].
func (e *Engine) SwitchToCandidate(ctx context.Context, token, candidateID string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, rec, err := e.liveSessionClaims(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.Switch != nil {
		e.denySwitch(ctx, claims.Subject, claims.SID, ErrInvalidSwitchState)
		return nil, ErrInvalidSwitchState
	}
	if claims.Kind != jwt.KindStaff {
		e.denySwitch(ctx, claims.Subject, claims.SID, ErrNotAuthorizedToSwitch)
		return nil, ErrNotAuthorizedToSwitch
	}
	if !Role(claims.Role).CanSwitch() {
		e.denySwitch(ctx, claims.Subject, claims.SID, ErrNotAuthorizedToSwitch)
		return nil, ErrNotAuthorizedToSwitch
	}

	candidate, err := e.identityStore.FindCandidateByID(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if candidate == nil || candidate.Archived {
		e.denySwitch(ctx, claims.Subject, claims.SID, ErrCandidateNotFound)
		return nil, ErrCandidateNotFound
	}

	newToken, err := e.jwtManager.ReissueWithSwitch(
		claims,
		candidate.ID,
		candidate.ExternalID,
		candidate.ProcessID,
		candidate.DisplayName,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrSwitchContextPresent) {
			return nil, ErrInvalidSwitchState
		}
		return nil, err
	}

	rec.SwitchedTo = candidate.ID
	rec.ProcessID = candidate.ProcessID
	if err := e.sessionStore.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	e.metrics.Inc(MetricSwitchToCandidate)
	e.emitAudit(ctx, auditSwitchToCandidate, true, claims.Subject, claims.SID, nil, func() map[string]string {
		return map[string]string{"candidate_id": candidate.ID}
	})
	return &LoginResult{Token: newToken, SessionID: claims.SID}, nil
}

// SwitchBack restores the staff token recorded in the switch context of a
// switched candidate token. A direct token fails with [ErrNotInSwitchedState].
func (e *Engine) SwitchBack(ctx context.Context, token string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, rec, err := e.liveSessionClaims(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.Switch == nil {
		return nil, ErrNotInSwitchedState
	}

	newToken, err := e.jwtManager.ReissueWithoutSwitch(claims)
	if err != nil {
		if errors.Is(err, jwt.ErrSwitchContextMissing) {
			return nil, ErrNotInSwitchedState
		}
		return nil, err
	}

	rec.SwitchedTo = ""
	rec.ProcessID = ""
	if err := e.sessionStore.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	e.metrics.Inc(MetricSwitchBack)
	e.emitAudit(ctx, auditSwitchBack, true, claims.Switch.StaffID, claims.SID, nil, nil)
	return &LoginResult{Token: newToken, SessionID: claims.SID}, nil
}

// liveSessionClaims parses the token and requires its session to still exist.
// Switches always run strict: a revoked session must not be reissuable.
func (e *Engine) liveSessionClaims(ctx context.Context, token string) (*jwt.SessionClaims, *session.Record, error) {
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	rec, err := e.sessionStore.Get(ctx, claims.SID, e.config.Session.AbsoluteSessionLifetime)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrSessionRevoked
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	return claims, rec, nil
}

func (e *Engine) denySwitch(ctx context.Context, identityID, sessionID string, cause error) {
	e.metrics.Inc(MetricSwitchDenied)
	e.emitAudit(ctx, auditSwitchDenied, false, identityID, sessionID, cause, nil)
}
