package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/store"
	"github.com/tokengate/tokengate/store/memory"
)

// recordingPrimary captures restore calls so TTL preservation can be checked.
type recordingPrimary struct {
	tokens   map[string]time.Duration
	blocks   map[uuid.UUID]time.Duration
	tokenErr error
	blockErr error
}

func newRecordingPrimary() *recordingPrimary {
	return &recordingPrimary{
		tokens: make(map[string]time.Duration),
		blocks: make(map[uuid.UUID]time.Duration),
	}
}

func (p *recordingPrimary) RestoreToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	if p.tokenErr != nil {
		return p.tokenErr
	}
	p.tokens[token] = ttl
	return nil
}

func (p *recordingPrimary) RestoreBlock(ctx context.Context, userID uuid.UUID, ttl time.Duration) error {
	if p.blockErr != nil {
		return p.blockErr
	}
	p.blocks[userID] = ttl
	return nil
}

func migrationConfig() store.Config {
	return store.Config{TokenTTL: 15 * time.Minute, MaxTokens: 4, BlockPrefix: "blocked:"}
}

func TestMigratePreservesRemainingTTL(t *testing.T) {
	current := time.Now()
	fallback := memory.New(migrationConfig(), memory.WithClock(func() time.Time { return current }))
	primary := newRecordingPrimary()

	ctx := context.Background()
	token := uuid.NewString()
	require.NoError(t, fallback.SaveToken(ctx, token, uuid.New()))

	// Five minutes pass before the primary comes back.
	current = current.Add(5 * time.Minute)

	m := NewTokenMigrator(fallback, primary)
	m.now = func() time.Time { return current }

	outcome, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationDone, outcome)

	require.Contains(t, primary.tokens, token)
	assert.Equal(t, 10*time.Minute, primary.tokens[token], "restored TTL must be the remaining lifetime, not a fresh one")
	assert.True(t, fallback.Empty(), "fallback is cleared after a full migration")
}

func TestMigrateDropsExpiredEntries(t *testing.T) {
	current := time.Now()
	fallback := memory.New(migrationConfig(), memory.WithClock(func() time.Time { return current }))
	primary := newRecordingPrimary()

	ctx := context.Background()
	stale := uuid.NewString()
	require.NoError(t, fallback.SaveToken(ctx, stale, uuid.New()))

	current = current.Add(10 * time.Minute)
	fresh := uuid.NewString()
	require.NoError(t, fallback.SaveToken(ctx, fresh, uuid.New()))

	// The first token is now past its expiry, the second is not.
	current = current.Add(6 * time.Minute)

	m := NewTokenMigrator(fallback, primary)
	m.now = func() time.Time { return current }

	outcome, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationDone, outcome)

	assert.NotContains(t, primary.tokens, stale, "expired entries are dropped, never transferred")
	assert.Contains(t, primary.tokens, fresh)
}

func TestMigrateTransfersBlocks(t *testing.T) {
	current := time.Now()
	fallback := memory.New(migrationConfig(), memory.WithClock(func() time.Time { return current }))
	primary := newRecordingPrimary()

	ctx := context.Background()
	userID := uuid.New()
	for i := 0; i < 4; i++ {
		require.NoError(t, fallback.SaveToken(ctx, uuid.NewString(), userID))
	}
	require.Error(t, fallback.SaveToken(ctx, uuid.NewString(), userID))

	current = current.Add(5 * time.Minute)

	m := NewTokenMigrator(fallback, primary)
	m.now = func() time.Time { return current }

	outcome, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationDone, outcome)

	require.Contains(t, primary.blocks, userID)
	assert.Equal(t, 10*time.Minute, primary.blocks[userID])
	assert.Empty(t, primary.tokens, "a blocked user's tokens were already revoked")
}

func TestMigrateNothingToDo(t *testing.T) {
	fallback := memory.New(migrationConfig())
	m := NewTokenMigrator(fallback, newRecordingPrimary())

	outcome, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MigrationSkipped, outcome)
}

func TestMigrateSecondRunSkips(t *testing.T) {
	fallback := memory.New(migrationConfig())
	primary := newRecordingPrimary()

	ctx := context.Background()
	require.NoError(t, fallback.SaveToken(ctx, uuid.NewString(), uuid.New()))

	m := NewTokenMigrator(fallback, primary)

	outcome, err := m.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, MigrationDone, outcome)

	outcome, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationSkipped, outcome)
}

func TestMigrateFailureLeavesFallbackIntact(t *testing.T) {
	fallback := memory.New(migrationConfig())
	primary := newRecordingPrimary()
	primary.tokenErr = errors.New("write refused")

	ctx := context.Background()
	token := uuid.NewString()
	require.NoError(t, fallback.SaveToken(ctx, token, uuid.New()))

	m := NewTokenMigrator(fallback, primary)

	outcome, err := m.Migrate(ctx)
	require.Error(t, err)
	assert.Equal(t, MigrationFailed, outcome)

	assert.False(t, fallback.Empty(), "unmigrated state must stay for the next attempt")
	valid, err := fallback.IsValid(ctx, token)
	require.NoError(t, err)
	assert.True(t, valid)
}
