// Package limiter guards the login endpoint against credential stuffing and
// the socket relay against message floods.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// LoginGuard tracks failed login attempts per (username, ip) and applies
// temporary lockouts.
type LoginGuard interface {
	// Allow reports whether a login attempt is currently allowed and, when
	// blocked, how long until retry.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
