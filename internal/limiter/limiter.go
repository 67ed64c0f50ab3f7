// Package limiter defines interfaces and implementations for registrar login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (registrar, client IP).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, registrarID string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, registrarID string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, registrarID string, ipHash []byte) (bool, time.Duration, error)
}

// Policy holds the lockout thresholds shared by every implementation.
type Policy struct {
	Window   time.Duration // failures older than this no longer count
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy matches the server defaults.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
