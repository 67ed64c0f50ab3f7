package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: 10 * time.Minute}, func() time.Time { return now })
	ip := HashIP("127.0.0.1")

	blocked, _, err := l.Failure(ctx, "r1", ip)
	require.NoError(t, err)
	require.False(t, blocked)

	// The first failure falls out of the window.
	now = now.Add(2 * time.Minute)
	blocked, _, _ = l.Failure(ctx, "r1", ip)
	require.False(t, blocked)

	blocked, dur, _ := l.Failure(ctx, "r1", ip)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)

	now = now.Add(4 * time.Minute)
	ok, retry, _ := l.Allow(ctx, "r1", ip)
	require.False(t, ok)
	require.Equal(t, 6*time.Minute, retry)

	now = now.Add(6 * time.Minute)
	ok, _, _ = l.Allow(ctx, "r1", ip)
	require.True(t, ok)

	require.NoError(t, l.Success(ctx, "r1", ip))
	require.Empty(t, l.entries)
}
