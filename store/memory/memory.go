// Package memory provides the in-process fallback token store. It keeps
// per-user token sets and block expiries in local maps and is used when the
// primary backend is unreachable. Accumulated state can be drained back to
// the primary via Snapshot and ClearMigrated.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokengate/tokengate/store"
)

// userState holds one user's tokens and block expiry. Each userState has its
// own lock so unrelated users never contend.
type userState struct {
	mu           sync.Mutex
	tokens       map[string]time.Time // token -> absolute expiry
	blockedUntil time.Time            // zero value means not blocked
}

// tokenEntry is the reverse mapping kept for validation and revocation.
type tokenEntry struct {
	owner     uuid.UUID
	expiresAt time.Time
}

// Store is the fallback store.Backend. All four structures (token->expiry,
// token->owner, user->tokens, user->block) are kept mutually consistent:
// the token index lives in tokens, everything per-user inside userState,
// and every mutation of a user's data happens under that user's lock.
type Store struct {
	cfg    store.Config
	now    func() time.Time
	tokens sync.Map // string -> tokenEntry
	users  sync.Map // uuid.UUID -> *userState
}

var _ store.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty fallback store.
func New(cfg store.Config, opts ...Option) *Store {
	s := &Store{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements store.Backend.
func (s *Store) Name() string { return "memory" }

// Applicable implements store.Backend. The fallback is always usable.
func (s *Store) Applicable(ctx context.Context) bool { return true }

func (s *Store) state(userID uuid.UUID) *userState {
	if v, ok := s.users.Load(userID); ok {
		return v.(*userState)
	}
	v, _ := s.users.LoadOrStore(userID, &userState{tokens: make(map[string]time.Time)})
	return v.(*userState)
}

// SaveToken implements store.Backend. Flow: reject blocked users, purge the
// user's expired tokens, enforce the session limit (revoke-all + block when
// reached), then store the token with expiry now+TTL. The whole
// check-then-act runs under the user's lock so two concurrent saves cannot
// both observe "under limit".
func (s *Store) SaveToken(ctx context.Context, token string, userID uuid.UUID) error {
	now := s.now()
	st := s.state(userID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.blockedUntil.After(now) {
		return &store.BlockedError{UserID: userID, RetryAfter: st.blockedUntil.Sub(now)}
	}
	st.blockedUntil = time.Time{}

	s.purgeExpiredLocked(st, now)

	if len(st.tokens) >= s.cfg.MaxTokens {
		s.revokeAllLocked(st)
		st.blockedUntil = now.Add(s.cfg.TokenTTL)
		return &store.BlockedError{UserID: userID, RetryAfter: s.cfg.TokenTTL}
	}

	expiresAt := now.Add(s.cfg.TokenTTL)
	st.tokens[token] = expiresAt
	s.tokens.Store(token, tokenEntry{owner: userID, expiresAt: expiresAt})
	return nil
}

// IsValid implements store.Backend. Expired entries are purged on read.
func (s *Store) IsValid(ctx context.Context, token string) (bool, error) {
	v, ok := s.tokens.Load(token)
	if !ok {
		return false, nil
	}
	e := v.(tokenEntry)
	if e.expiresAt.Before(s.now()) {
		s.expireToken(token, e.owner)
		return false, nil
	}
	return true, nil
}

// OwnerOf implements store.Backend. Non-destructive; malformed tokens and
// unknown mappings yield store.UnknownOwner.
func (s *Store) OwnerOf(ctx context.Context, token string) (string, error) {
	if _, err := uuid.Parse(token); err != nil {
		return store.UnknownOwner, nil
	}
	v, ok := s.tokens.Load(token)
	if !ok {
		return store.UnknownOwner, nil
	}
	return v.(tokenEntry).owner.String(), nil
}

// Revoke implements store.Backend. Removes the token from the token index
// and the owner's set, and drops the owner's block marker if one is present.
// Idempotent: revoking an absent token reports (false, nil).
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	v, ok := s.tokens.Load(token)
	if !ok {
		return false, nil
	}
	e := v.(tokenEntry)
	st := s.state(e.owner)

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.tokens[token]; !ok {
		// Lost a race with another revoke or expiry sweep.
		s.tokens.Delete(token)
		return false, nil
	}
	delete(st.tokens, token)
	s.tokens.Delete(token)
	st.blockedUntil = time.Time{}
	return true, nil
}

// Snapshot returns a copy of the live token and block state for migration.
// Expired entries are included; the migrator drops them by remaining TTL.
func (s *Store) Snapshot() (tokens map[uuid.UUID]map[string]time.Time, blocks map[uuid.UUID]time.Time) {
	tokens = make(map[uuid.UUID]map[string]time.Time)
	blocks = make(map[uuid.UUID]time.Time)
	s.users.Range(func(k, v any) bool {
		userID := k.(uuid.UUID)
		st := v.(*userState)
		st.mu.Lock()
		if len(st.tokens) > 0 {
			m := make(map[string]time.Time, len(st.tokens))
			for tok, exp := range st.tokens {
				m[tok] = exp
			}
			tokens[userID] = m
		}
		if !st.blockedUntil.IsZero() {
			blocks[userID] = st.blockedUntil
		}
		st.mu.Unlock()
		return true
	})
	return tokens, blocks
}

// Empty reports whether the store holds no tokens and no block entries.
// Used by the delegator to skip migration cheaply.
func (s *Store) Empty() bool {
	empty := true
	s.users.Range(func(_, v any) bool {
		st := v.(*userState)
		st.mu.Lock()
		if len(st.tokens) > 0 || !st.blockedUntil.IsZero() {
			empty = false
		}
		st.mu.Unlock()
		return empty
	})
	return empty
}

// ClearMigrated empties all structures. Call only after a successful
// migration to the primary backend.
func (s *Store) ClearMigrated() {
	s.tokens.Range(func(k, _ any) bool {
		s.tokens.Delete(k)
		return true
	})
	s.users.Range(func(k, _ any) bool {
		s.users.Delete(k)
		return true
	})
}

// purgeExpiredLocked removes the user's already-expired tokens so dead
// sessions never count against the limit. Caller holds st.mu.
func (s *Store) purgeExpiredLocked(st *userState, now time.Time) {
	for tok, exp := range st.tokens {
		if exp.Before(now) {
			delete(st.tokens, tok)
			s.tokens.Delete(tok)
		}
	}
}

// revokeAllLocked drops every token the user holds. Caller holds st.mu.
func (s *Store) revokeAllLocked(st *userState) {
	for tok := range st.tokens {
		delete(st.tokens, tok)
		s.tokens.Delete(tok)
	}
}

// expireToken lazily removes a token observed to be past its expiry.
func (s *Store) expireToken(token string, owner uuid.UUID) {
	st := s.state(owner)
	st.mu.Lock()
	delete(st.tokens, token)
	st.mu.Unlock()
	s.tokens.Delete(token)
}
