package vkauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vkportal/vkauth/internal/rate"
	"github.com/vkportal/vkauth/jwt"
	"github.com/vkportal/vkauth/password"
	"github.com/vkportal/vkauth/session"
)

// DefaultConfig returns the baseline configuration. Callers overwrite the
// fields they care about (keys at minimum) and pass the result to
// [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

// Builder assembles an [Engine]. Obtain one from [New], chain the With
// methods, and finish with [Builder.Build]. A Builder is single-use.
type Builder struct {
	cfg           Config
	redis         *redis.Client
	identityStore IdentityStore
	auditSink     AuditSink
	built         bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or
// security checks fail.
// New does not mutate shared global state and can be used concurrently when
// the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the entire configuration. Key material is cloned so the
// caller's slices can be zeroed afterwards.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, rate limits, challenges,
// and enrollments. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the identity backend. Required.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identityStore = store
	return b
}

// WithAuditSink sets the audit event destination. Ignored unless audit is
// enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.cfg.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles validate-latency buckets. Has no effect
// unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.cfg.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns the
// ready [Engine]. The builder cannot be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.identityStore == nil {
		return nil, errors.New("identity store is required")
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(b.cfg.JWT.SigningMethod),
		PrivateKey:    b.cfg.JWT.PrivateKey,
		PublicKey:     b.cfg.JWT.PublicKey,
		Issuer:        b.cfg.JWT.Issuer,
		Audience:      b.cfg.JWT.Audience,
		KeyID:         b.cfg.JWT.KeyID,
		RequireIAT:    true,
	})
	if err != nil {
		return nil, err
	}

	passwordHash, err := password.NewArgon2(password.Config{
		Memory:      b.cfg.Password.Memory,
		Time:        b.cfg.Password.Time,
		Parallelism: b.cfg.Password.Parallelism,
		SaltLength:  b.cfg.Password.SaltLength,
		KeyLength:   b.cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:        b.cfg,
		identityStore: b.identityStore,
		jwtManager:    jwtManager,
		passwordHash:  passwordHash,
		sessionStore: session.NewStore(
			b.redis,
			b.cfg.Session.RedisPrefix,
			b.cfg.Session.SlidingExpiration,
			b.cfg.Session.JitterEnabled,
			b.cfg.Session.JitterRange,
		),
		rateLimiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle:      b.cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      b.cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: b.cfg.Security.LoginCooldownDuration,
		}),
		totpLimiter:     newTOTPLimiter(b.redis, b.cfg.TOTP.AttemptLimit, b.cfg.TOTP.AttemptCooldown),
		challengeStore:  newChallengeStore(b.redis),
		enrollmentStore: newEnrollmentStore(b.redis),
		totp:            newTOTPManager(b.cfg.TOTP),
		audit:           newAuditDispatcher(b.cfg.Audit, b.auditSink),
		metrics:         NewMetrics(b.cfg.Metrics),
	}

	return engine, nil
}
