package limiter

import (
	"context"
	"sync"
	"time"
)

type attempt struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is an in-process Limiter with the same policy semantics as Postgres.
type Memory struct {
	mu       sync.Mutex
	policy   Policy
	attempts map[string]*attempt
	swept    time.Time
	now      func() time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, attempts: map[string]*attempt{}, now: time.Now}
}

func key(username string, ipHash []byte) string { return username + "\x00" + string(ipHash) }

// Allow reports whether the pair is currently unblocked.
func (m *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if wait := a.blockedUntil.Sub(m.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (m *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	m.mu.Lock()
	delete(m.attempts, key(username, ipHash))
	m.mu.Unlock()
	return nil
}

// Failure records a failed attempt.
func (m *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	k := key(username, ipHash)
	a, ok := m.attempts[k]
	if !ok || now.Sub(a.windowStart) > m.policy.Window {
		a = &attempt{windowStart: now}
		m.attempts[k] = a
	}
	a.fails++
	if a.fails < m.policy.MaxFails {
		return false, 0, nil
	}
	a.blockedUntil = now.Add(m.policy.BlockFor)
	return true, m.policy.BlockFor, nil
}

// sweep drops pairs whose window has lapsed and that are not blocked. It runs
// at most once per window so Failure stays cheap. Caller holds m.mu.
func (m *Memory) sweep(now time.Time) {
	every := m.policy.Window
	if every <= 0 {
		every = time.Minute
	}
	if now.Sub(m.swept) < every {
		return
	}
	m.swept = now
	for k, a := range m.attempts {
		if now.Sub(a.windowStart) > m.policy.Window && !a.blockedUntil.After(now) {
			delete(m.attempts, k)
		}
	}
}
