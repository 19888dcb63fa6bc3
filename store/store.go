// Package store defines the token store contract shared by the primary
// (Redis) and fallback (in-memory) backends, along with the error taxonomy
// the failover delegator relies on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnknownOwner is the sentinel returned by OwnerOf when a token is malformed
// or has no owner mapping. Callers on diagnostic paths treat it as "no
// identity" rather than an error.
const UnknownOwner = "unknown"

// Backend is the contract every token storage backend implements.
//
// Implementations must be safe for concurrent use. Business rejections
// (blocked user) are reported as *BlockedError; any other non-nil error is
// infrastructure-class and makes the delegator try the next backend.
type Backend interface {
	// Name identifies the backend for failover bookkeeping and logs.
	Name() string

	// Applicable reports whether the backend can serve requests right now.
	// For the primary this is a live round-trip; the fallback always
	// returns true.
	Applicable(ctx context.Context) bool

	// SaveToken registers a new token for the user. The backend rejects
	// blocked users, purges the user's expired tokens first, and — if the
	// active count would reach the configured maximum — revokes all of the
	// user's tokens, blocks the user for the token TTL, and rejects.
	SaveToken(ctx context.Context, token string, userID uuid.UUID) error

	// IsValid reports whether the token exists and has not expired.
	// Implementations may lazily purge expired entries as a side effect.
	IsValid(ctx context.Context, token string) (bool, error)

	// OwnerOf resolves the owning user id for a token without modifying
	// the store. Malformed tokens and missing mappings yield UnknownOwner.
	OwnerOf(ctx context.Context, token string) (string, error)

	// Revoke removes the token and its index link. It reports whether
	// anything was actually removed; revoking an absent token returns
	// (false, nil), never an error.
	Revoke(ctx context.Context, token string) (bool, error)
}

// Config holds the tunables shared by all backends.
type Config struct {
	// TokenTTL is the lifetime of an issued token, and also the duration
	// of the temporary block applied when the session limit is crossed.
	TokenTTL time.Duration
	// MaxTokens is the number of concurrently valid tokens a user may
	// hold. The save that would reach this count revokes everything and
	// blocks the user instead.
	MaxTokens int
	// BlockPrefix prefixes block marker keys in the shared store.
	BlockPrefix string
}

// BlockedError is the business rejection returned when a user is temporarily
// blocked. RetryAfter is the remaining block duration, rounded up to whole
// seconds for client-facing messages.
type BlockedError struct {
	UserID     uuid.UUID
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("user is temporarily blocked, try again in %ds", e.RetrySeconds())
}

// RetrySeconds returns the remaining wait rounded up to whole seconds, with a
// minimum of one second while the block is still active.
func (e *BlockedError) RetrySeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Is makes errors.Is(err, ErrUserBlocked) match any *BlockedError.
func (e *BlockedError) Is(target error) bool { return target == ErrUserBlocked }

// IsBusiness reports whether err is a deterministic business rejection that
// must propagate to the caller instead of triggering backend failover.
func IsBusiness(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}
