package store

import "errors"

var (
	// ErrUserBlocked matches any *BlockedError via errors.Is.
	ErrUserBlocked = errors.New("user is temporarily blocked")
	// ErrNoBackend indicates no backend was applicable at all. This is a
	// deployment/configuration fault, not a transient failure.
	ErrNoBackend = errors.New("no token store backend available")
)
