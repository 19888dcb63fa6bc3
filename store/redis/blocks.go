package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// blockMarker is the value stored under a block key; only key existence
// matters.
const blockMarker = "blocked"

// Blocks is the registry of temporarily blocked users, backed by prefixed
// Redis keys whose TTL equals the token lifetime. Unblocking happens
// automatically via key expiry.
type Blocks struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewBlocks creates a registry writing keys of the form <prefix><userID>.
func NewBlocks(client *redis.Client, prefix string, ttl time.Duration) *Blocks {
	return &Blocks{client: client, prefix: prefix, ttl: ttl}
}

func (b *Blocks) key(userID uuid.UUID) string { return b.prefix + userID.String() }

// Block marks the user as blocked for the configured token lifetime.
// Repeated calls reset the TTL. Returns the write error so callers can
// decide to fall back instead of failing the whole request.
func (b *Blocks) Block(ctx context.Context, userID uuid.UUID) error {
	return b.BlockFor(ctx, userID, b.ttl)
}

// BlockFor writes a block marker with an explicit TTL. Migration uses this
// to preserve the remaining block duration.
func (b *Blocks) BlockFor(ctx context.Context, userID uuid.UUID, ttl time.Duration) error {
	return b.client.Set(ctx, b.key(userID), blockMarker, ttl).Err()
}

// IsBlocked reports whether a block marker exists. No side effects.
func (b *Blocks) IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Remaining returns the block's remaining duration, or zero when the user
// is not blocked.
func (b *Blocks) Remaining(ctx context.Context, userID uuid.UUID) (time.Duration, error) {
	d, err := b.client.PTTL(ctx, b.key(userID)).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Unblock deletes the block marker. Idempotent; reports whether a marker
// was actually removed.
func (b *Blocks) Unblock(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := b.client.Del(ctx, b.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
