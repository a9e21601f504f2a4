// Package limiter throttles repeated failed logins per (username, client) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// Policy is the shared lockout configuration: MaxFails failures within Window
// block the pair for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures per fifteen minutes.
func DefaultPolicy() Policy {
	return Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
}

// HashIP returns a stable hash for a client address so raw IPs are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
