package vkauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vkportal/vkauth/internal/rate"
	"github.com/vkportal/vkauth/jwt"
	"github.com/vkportal/vkauth/password"
	"github.com/vkportal/vkauth/session"
)

// Engine is the authentication engine. Construct it with [New] and its
// builder methods; the zero value is not usable.
//
// Engine instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Engine struct {
	config        Config
	identityStore IdentityStore

	sessionStore    *session.Store
	jwtManager      *jwt.Manager
	passwordHash    *password.Argon2
	rateLimiter     *rate.Limiter
	totpLimiter     *totpLimiter
	challengeStore  *challengeStore
	enrollmentStore *enrollmentStore
	totp            *totpManager

	audit   *auditDispatcher
	metrics *Metrics
}

// SessionInfo is the read-only session listing entry returned by
// [Engine.ListActiveSessions].
type SessionInfo struct {
	SessionID  string
	Kind       IdentityKind
	Role       Role
	ProcessID  string
	SwitchedTo string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// Validate verifies a session token and returns its decoded view.
//
// mode selects the verification depth for this call: [ModeJWTOnly] checks the
// signature and registered claims only and performs zero I/O, [ModeStrict]
// additionally requires the backing session record to still exist in Redis,
// and [ModeInherit] falls back to the engine-wide ValidationMode. In strict
// mode a Redis outage fails closed.
func (e *Engine) Validate(ctx context.Context, token string, mode RouteMode) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	resolved, err := e.resolveRouteMode(mode)
	if err != nil {
		return nil, err
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if resolved == ModeStrict {
		_, err := e.sessionStore.Get(ctx, claims.SID, e.config.Session.AbsoluteSessionLifetime)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				e.metrics.Inc(MetricSessionInvalidated)
				return nil, ErrSessionRevoked
			}
			if errors.Is(err, session.ErrRedisUnavailable) {
				return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
	}

	return authResultFromClaims(claims), nil
}

// CurrentSession is [Engine.Validate] with the engine-wide validation mode.
func (e *Engine) CurrentSession(ctx context.Context, token string) (*AuthResult, error) {
	return e.Validate(ctx, token, ModeInherit)
}

// Logout deletes the session behind the token. The token itself stays
// cryptographically valid until its exp, which is why revocation-sensitive
// routes run in strict mode.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if err := e.sessionStore.Delete(ctx, claims.SID); err != nil {
		e.emitAudit(ctx, auditLogoutSession, false, claims.Subject, claims.SID, err, nil)
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditLogoutSession, true, claims.Subject, claims.SID, nil, nil)
	return nil
}

// LogoutAll deletes every session of the identity except the one named by
// exceptSessionID (pass "" to delete all). Returns the exact number of
// sessions deleted.
func (e *Engine) LogoutAll(ctx context.Context, identityID, exceptSessionID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessionStore.DeleteAllForIdentity(ctx, identityID, exceptSessionID)
	if err != nil {
		e.emitAudit(ctx, auditLogoutAll, false, identityID, "", err, nil)
		return 0, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, auditLogoutAll, true, identityID, "", nil, func() map[string]string {
		return map[string]string{"removed": fmt.Sprintf("%d", removed)}
	})
	return removed, nil
}

// ListActiveSessions returns the live sessions of an identity without
// touching their TTLs. Expired entries are skipped.
func (e *Engine) ListActiveSessions(ctx context.Context, identityID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ids, err := e.sessionStore.ActiveSessionIDs(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	records, err := e.sessionStore.GetManyReadOnly(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		kind := KindStaff
		if rec.IdentityType == session.IdentityCandidate {
			kind = KindCandidate
		}
		infos = append(infos, SessionInfo{
			SessionID:  rec.SessionID,
			Kind:       kind,
			Role:       Role(rec.Role),
			ProcessID:  rec.ProcessID,
			SwitchedTo: rec.SwitchedTo,
			CreatedAt:  time.Unix(rec.CreatedAt, 0),
			LastSeenAt: time.Unix(rec.LastSeenAt, 0),
			ExpiresAt:  time.Unix(rec.ExpiresAt, 0),
		})
	}
	return infos, nil
}

// Health reports session backend availability and round-trip latency.
func (e *Engine) Health(ctx context.Context) (time.Duration, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return latency, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return latency, nil
}

// Close flushes and stops the audit dispatcher. Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) resolveRouteMode(mode RouteMode) (ValidationMode, error) {
	if mode == ModeInherit {
		return e.config.ValidationMode, nil
	}
	switch mode {
	case ModeJWTOnly, ModeStrict:
		return mode, nil
	default:
		return 0, ErrInvalidRouteMode
	}
}

func (e *Engine) sessionLifetime() time.Duration {
	return e.config.Session.AbsoluteSessionLifetime
}

func authResultFromClaims(claims *jwt.SessionClaims) *AuthResult {
	result := &AuthResult{
		IdentityID: claims.Subject,
		Kind:       IdentityKind(claims.Kind),
		SessionID:  claims.SID,
	}

	switch claims.Kind {
	case jwt.KindStaff:
		result.Role = Role(claims.Role)
		result.Login = claims.Login
	case jwt.KindCandidate:
		result.CandidateID = claims.CandidateID
		result.ProcessID = claims.ProcessID
		result.Name = claims.Name
	}

	if claims.Switch != nil {
		result.SwitchedFrom = &SwitchOrigin{
			StaffID: claims.Switch.StaffID,
			Role:    Role(claims.Switch.Role),
			Login:   claims.Switch.Login,
		}
	}

	return result
}
