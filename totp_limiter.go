package vkauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// totpLimiter bounds two-factor code attempts per identity with a
// fixed-window counter. Covers live TOTP codes and backup codes alike.
type totpLimiter struct {
	redis    *redis.Client
	max      int
	cooldown time.Duration
}

func newTOTPLimiter(redisClient *redis.Client, maxAttempts int, cooldown time.Duration) *totpLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &totpLimiter{redis: redisClient, max: maxAttempts, cooldown: cooldown}
}

func (l *totpLimiter) key(identityID string) string {
	return "vtt:" + identityID
}

func (l *totpLimiter) Check(ctx context.Context, identityID string) error {
	count, err := l.redis.Get(ctx, l.key(identityID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count >= int64(l.max) {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *totpLimiter) RecordFailure(ctx context.Context, identityID string) error {
	count, err := l.redis.Incr(ctx, l.key(identityID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(identityID), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
		}
	}
	if count >= int64(l.max) {
		return ErrTwoFactorRateLimited
	}
	return nil
}

func (l *totpLimiter) Reset(ctx context.Context, identityID string) error {
	if err := l.redis.Del(ctx, l.key(identityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	return nil
}
