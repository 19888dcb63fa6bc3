package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/store"
)

// newIntegrationStore dials a local Redis and skips the test when it is not
// reachable. Uses DB 15 and flushes it to keep runs independent.
func newIntegrationStore(t *testing.T, cfg store.Config) (*Store, context.Context) {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() { client.Close() })

	return New(client, cfg), ctx
}

func integrationConfig() store.Config {
	return store.Config{
		TokenTTL:    time.Minute,
		MaxTokens:   4,
		BlockPrefix: "blocked:",
	}
}

func TestIntegration_SaveValidateRevoke(t *testing.T) {
	s, ctx := newIntegrationStore(t, integrationConfig())
	userID := uuid.New()
	token := uuid.NewString()

	require.NoError(t, s.SaveToken(ctx, token, userID))

	valid, err := s.IsValid(ctx, token)
	require.NoError(t, err)
	assert.True(t, valid)

	owner, err := s.OwnerOf(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), owner)

	removed, err := s.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, removed)

	valid, err = s.IsValid(ctx, token)
	require.NoError(t, err)
	assert.False(t, valid)

	removed, err = s.Revoke(ctx, token)
	require.NoError(t, err)
	assert.False(t, removed, "second revoke is a no-op")
}

func TestIntegration_TokenKeyTTL(t *testing.T) {
	cfg := integrationConfig()
	cfg.TokenTTL = time.Second
	s, ctx := newIntegrationStore(t, cfg)
	token := uuid.NewString()

	require.NoError(t, s.SaveToken(ctx, token, uuid.New()))

	time.Sleep(1200 * time.Millisecond)

	valid, err := s.IsValid(ctx, token)
	require.NoError(t, err)
	assert.False(t, valid, "token should expire with its key")
}

func TestIntegration_SessionLimitBlocks(t *testing.T) {
	s, ctx := newIntegrationStore(t, integrationConfig())
	userID := uuid.New()

	tokens := make([]string, 4)
	for i := range tokens {
		tokens[i] = uuid.NewString()
		require.NoError(t, s.SaveToken(ctx, tokens[i], userID))
	}

	err := s.SaveToken(ctx, uuid.NewString(), userID)
	var blocked *store.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, userID, blocked.UserID)

	for _, tok := range tokens {
		valid, err := s.IsValid(ctx, tok)
		require.NoError(t, err)
		assert.False(t, valid, "limit breach revokes every existing token")
	}

	// Subsequent saves are rejected while the block marker lives.
	err = s.SaveToken(ctx, uuid.NewString(), userID)
	require.ErrorAs(t, err, &blocked)
	assert.Greater(t, blocked.RetryAfter, time.Duration(0))
}

func TestIntegration_RestorePreservesTTL(t *testing.T) {
	s, ctx := newIntegrationStore(t, integrationConfig())
	userID := uuid.New()
	token := uuid.NewString()

	require.NoError(t, s.RestoreToken(ctx, token, userID, 30*time.Second))

	valid, err := s.IsValid(ctx, token)
	require.NoError(t, err)
	assert.True(t, valid)

	ttl, err := s.client.TTL(ctx, token).Result()
	require.NoError(t, err)
	assert.InDelta(t, 30, ttl.Seconds(), 2, "restored key keeps the remaining TTL")

	// Restoring again is idempotent.
	require.NoError(t, s.RestoreToken(ctx, token, userID, 30*time.Second))
	owner, err := s.OwnerOf(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), owner)
}

func TestIntegration_Blocks(t *testing.T) {
	s, ctx := newIntegrationStore(t, integrationConfig())
	userID := uuid.New()

	blocked, err := s.Blocks().IsBlocked(ctx, userID)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, s.Blocks().BlockFor(ctx, userID, 30*time.Second))

	blocked, err = s.Blocks().IsBlocked(ctx, userID)
	require.NoError(t, err)
	assert.True(t, blocked)

	remaining, err := s.Blocks().Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Greater(t, remaining, 25*time.Second)

	removed, err := s.Blocks().Unblock(ctx, userID)
	require.NoError(t, err)
	assert.True(t, removed)

	blocked, err = s.Blocks().IsBlocked(ctx, userID)
	require.NoError(t, err)
	assert.False(t, blocked)
}
