package limiter

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCmdable interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis keeps failure counters and lockouts as expiring keys, so the window is fixed rather than sliding.
type Redis struct {
	rdb    redisCmdable
	policy Policy
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb *redis.Client, p Policy) *Redis {
	return &Redis{rdb: rdb, policy: p}
}

func redisKeys(registrarID string, ipHash []byte) (fails, block string) {
	suffix := registrarID + ":" + hex.EncodeToString(ipHash)
	return "login:fails:" + suffix, "login:block:" + suffix
}

// Allow reports whether the lockout key is absent.
func (l *Redis) Allow(ctx context.Context, registrarID string, ipHash []byte) (bool, time.Duration, error) {
	_, block := redisKeys(registrarID, ipHash)
	ttl, err := l.rdb.PTTL(ctx, block).Result()
	if err != nil {
		return false, 0, fmt.Errorf("limiter pttl: %w", err)
	}
	if ttl > 0 {
		return false, ttl, nil
	}
	return true, 0, nil
}

// Success drops both keys.
func (l *Redis) Success(ctx context.Context, registrarID string, ipHash []byte) error {
	fails, block := redisKeys(registrarID, ipHash)
	return l.rdb.Del(ctx, fails, block).Err()
}

// Failure bumps the counter and places a lockout once MaxFails is reached.
func (l *Redis) Failure(ctx context.Context, registrarID string, ipHash []byte) (bool, time.Duration, error) {
	fails, block := redisKeys(registrarID, ipHash)
	n, err := l.rdb.Incr(ctx, fails).Result()
	if err != nil {
		return false, 0, fmt.Errorf("limiter incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, fails, l.policy.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("limiter expire: %w", err)
		}
	}
	if n < int64(l.policy.MaxFails) {
		return false, 0, nil
	}
	if err := l.rdb.Set(ctx, block, 1, l.policy.BlockFor).Err(); err != nil {
		return false, 0, fmt.Errorf("limiter block: %w", err)
	}
	if err := l.rdb.Del(ctx, fails).Err(); err != nil {
		return false, 0, fmt.Errorf("limiter reset: %w", err)
	}
	return true, l.policy.BlockFor, nil
}
