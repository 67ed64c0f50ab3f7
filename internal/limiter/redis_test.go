package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	counters map[string]int64
	ttl      map[string]time.Duration
	incrErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counters: map[string]int64{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.incrErr != nil {
		return redis.NewIntResult(0, f.incrErr)
	}
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) *redis.BoolCmd {
	f.ttl[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, _ any, exp time.Duration) *redis.StatusCmd {
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) PTTL(_ context.Context, key string) *redis.DurationCmd {
	if d, ok := f.ttl[key]; ok {
		return redis.NewDurationResult(d, nil)
	}
	return redis.NewDurationResult(-2, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.counters, k)
		delete(f.ttl, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisLimiter_LockoutCycle(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	l := &Redis{rdb: rdb, policy: Policy{Window: time.Minute, MaxFails: 3, BlockFor: 5 * time.Minute}}
	ip := HashIP("10.0.0.1")

	ok, _, err := l.Allow(ctx, "r1", ip)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		blocked, _, err := l.Failure(ctx, "r1", ip)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	fails, _ := redisKeys("r1", ip)
	require.Equal(t, time.Minute, rdb.ttl[fails])

	blocked, dur, err := l.Failure(ctx, "r1", ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 5*time.Minute, dur)

	ok, retry, err := l.Allow(ctx, "r1", ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 5*time.Minute, retry)

	ok, _, err = l.Allow(ctx, "r2", ip)
	require.NoError(t, err)
	require.True(t, ok, "other registrars are unaffected")

	require.NoError(t, l.Success(ctx, "r1", ip))
	ok, _, err = l.Allow(ctx, "r1", ip)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLimiter_IncrError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.incrErr = errors.New("conn refused")
	l := &Redis{rdb: rdb, policy: DefaultPolicy}
	_, _, err := l.Failure(context.Background(), "r1", HashIP("x"))
	require.ErrorContains(t, err, "conn refused")
}
