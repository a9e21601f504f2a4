// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Sentinels shared by the storage, service and transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication. It carries no reason:
	// unknown user, wrong password and invalid token all map to this value.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input rejected before reaching storage.
	ErrValidation = errors.New("validation")
)
