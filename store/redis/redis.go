// Package redis provides the primary token store backed by a shared,
// TTL-capable Redis. The token string itself is a key holding a one-element
// set with the owner id (existence == validity); the user id is a second key
// holding the set of that user's tokens, cleaned lazily rather than by TTL.
package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tokengate/tokengate/store"
)

// pingTimeout bounds the Applicable health probe so a dead Redis cannot
// stall request handling beyond it.
const pingTimeout = 2 * time.Second

// Store is the primary store.Backend. Connection and operation deadlines
// are enforced by the client's dial/read/write timeouts, so any outage
// surfaces as an error the delegator can fail over on — never as "invalid".
type Store struct {
	client *redis.Client
	cfg    store.Config
	blocks *Blocks
}

var _ store.Backend = (*Store)(nil)

// New creates a primary store over the given client. The Blocks registry
// shares the same client and the configured block key prefix.
func New(client *redis.Client, cfg store.Config) *Store {
	return &Store{
		client: client,
		cfg:    cfg,
		blocks: NewBlocks(client, cfg.BlockPrefix, cfg.TokenTTL),
	}
}

// Blocks returns the block registry bound to this store.
func (s *Store) Blocks() *Blocks { return s.blocks }

// Name implements store.Backend.
func (s *Store) Name() string { return "redis" }

// Applicable implements store.Backend by pinging the server.
func (s *Store) Applicable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// SaveToken implements store.Backend. Flow: reject blocked users, drop index
// entries whose token key has expired, enforce the session limit (revoke-all
// + block when the index cardinality reaches the maximum), then create the
// token key and index link with matching TTLs.
func (s *Store) SaveToken(ctx context.Context, token string, userID uuid.UUID) error {
	blocked, err := s.blocks.IsBlocked(ctx, userID)
	if err != nil {
		return err
	}
	if blocked {
		remaining, err := s.blocks.Remaining(ctx, userID)
		if err != nil || remaining <= 0 {
			remaining = s.cfg.TokenTTL
		}
		return &store.BlockedError{UserID: userID, RetryAfter: remaining}
	}

	idxKey := userID.String()
	if err := s.cleanupExpired(ctx, idxKey); err != nil {
		return err
	}

	active, err := s.client.SCard(ctx, idxKey).Result()
	if err != nil {
		return err
	}
	if active >= int64(s.cfg.MaxTokens) {
		if err := s.revokeAll(ctx, idxKey); err != nil {
			return err
		}
		if err := s.blocks.Block(ctx, userID); err != nil {
			return err
		}
		return &store.BlockedError{UserID: userID, RetryAfter: s.cfg.TokenTTL}
	}

	// Token key: a set holding the owner, with TTL. Existence == validity.
	if err := s.client.SAdd(ctx, token, idxKey).Err(); err != nil {
		return err
	}
	if err := s.client.Expire(ctx, token, s.cfg.TokenTTL).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, idxKey, token).Err()
}

// IsValid implements store.Backend: the token is valid iff its key still
// exists. Redis expiry does the purging.
func (s *Store) IsValid(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, token).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// OwnerOf implements store.Backend. This is a non-critical read used for
// rate-limiter identity resolution, so backend failures degrade to
// UnknownOwner instead of surfacing.
func (s *Store) OwnerOf(ctx context.Context, token string) (string, error) {
	if _, err := uuid.Parse(token); err != nil {
		return store.UnknownOwner, nil
	}
	member, err := s.client.SRandMember(ctx, token).Result()
	if err != nil {
		return store.UnknownOwner, nil
	}
	if _, err := uuid.Parse(member); err != nil {
		return store.UnknownOwner, nil
	}
	return member, nil
}

// Revoke implements store.Backend. The token key's members are the reverse
// links to the owning index: strip the token from each index, drop any block
// marker for those owners, then delete the token key itself.
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	owners, err := s.client.SMembers(ctx, token).Result()
	if err != nil {
		return false, err
	}
	for _, owner := range owners {
		if err := s.client.SRem(ctx, owner, token).Err(); err != nil {
			return false, err
		}
		ownerID, err := uuid.Parse(owner)
		if err != nil {
			continue
		}
		if _, err := s.blocks.Unblock(ctx, ownerID); err != nil {
			return false, err
		}
	}
	n, err := s.client.Del(ctx, token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RestoreToken recreates a token key and its index link with the given
// remaining TTL. Used by migration; writes are idempotent so a retried
// migration only rewrites identical state.
func (s *Store) RestoreToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	idxKey := userID.String()
	if err := s.client.SAdd(ctx, token, idxKey).Err(); err != nil {
		return err
	}
	if err := s.client.Expire(ctx, token, ttl).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, idxKey, token).Err()
}

// RestoreBlock recreates a block marker with the given remaining TTL.
// Used by migration.
func (s *Store) RestoreBlock(ctx context.Context, userID uuid.UUID, ttl time.Duration) error {
	return s.blocks.BlockFor(ctx, userID, ttl)
}

// cleanupExpired removes index members whose token key no longer exists.
func (s *Store) cleanupExpired(ctx context.Context, idxKey string) error {
	tokens, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		n, err := s.client.Exists(ctx, tok).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			if err := s.client.SRem(ctx, idxKey, tok).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// revokeAll deletes every token key referenced by the index, then the index.
func (s *Store) revokeAll(ctx context.Context, idxKey string) error {
	tokens, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		if err := s.client.Del(ctx, tok).Err(); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, idxKey).Err()
}
