package limiter

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	fails        int
	firstFail    time.Time
	blockedUntil time.Time
}

// Memory is a process-local limiter for single-node and development setups.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	entries map[string]*memEntry
}

// NewMemory constructs an in-process limiter. now may be nil.
func NewMemory(p Policy, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{policy: p, now: now, entries: make(map[string]*memEntry)}
}

func memKey(registrarID string, ipHash []byte) string { return registrarID + "\x00" + string(ipHash) }

func (l *Memory) Allow(_ context.Context, registrarID string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[memKey(registrarID, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (l *Memory) Success(_ context.Context, registrarID string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, memKey(registrarID, ipHash))
	return nil
}

func (l *Memory) Failure(_ context.Context, registrarID string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := memKey(registrarID, ipHash)
	e, ok := l.entries[k]
	if !ok || now.Sub(e.firstFail) > l.policy.Window {
		e = &memEntry{firstFail: now}
		l.entries[k] = e
	}
	e.fails++
	if e.fails < l.policy.MaxFails {
		return false, 0, nil
	}
	e.fails = 0
	e.firstFail = now
	e.blockedUntil = now.Add(l.policy.BlockFor)
	return true, l.policy.BlockFor, nil
}
