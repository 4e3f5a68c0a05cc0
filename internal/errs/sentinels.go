// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownIdentity indicates a challenge was requested for an unregistered username.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrInvalidCredentials indicates a failed login. Missing nonce, foreign nonce and
	// bad signature all map here so the response does not leak which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUsernameTaken indicates a registration attempt for an existing username.
	ErrUsernameTaken = errors.New("username exists")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates an authenticated caller touching another user's data.
	ErrForbidden = errors.New("forbidden")

	// ErrDecryptionFailed indicates a ciphertext that could not be opened:
	// malformed envelope, wrong key, or corrupted payload.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrValidation indicates malformed caller input. The wrapped message
	// names the offending field.
	ErrValidation = errors.New("validation")
)
