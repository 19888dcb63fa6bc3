package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDirectory(t *testing.T) *BoltDirectory {
	t.Helper()
	d, err := OpenBolt(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestPutAndKey(t *testing.T) {
	d := openTestDirectory(t)
	ctx := context.Background()
	userID, key := uuid.New(), uuid.New()

	require.NoError(t, d.Put(ctx, userID, key))

	got, err := d.Key(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestKeyUnknownUser(t *testing.T) {
	d := openTestDirectory(t)

	_, err := d.Key(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutReplacesKey(t *testing.T) {
	d := openTestDirectory(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, d.Put(ctx, userID, uuid.New()))

	rotated := uuid.New()
	require.NoError(t, d.Put(ctx, userID, rotated))

	got, err := d.Key(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, rotated, got)
}

func TestSeedDefaults(t *testing.T) {
	d := openTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.SeedDefaults(ctx))

	key, err := d.Key(ctx, uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"), key)
}

func TestSeedDefaultsKeepsExisting(t *testing.T) {
	d := openTestDirectory(t)
	ctx := context.Background()

	fixture := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	custom := uuid.New()
	require.NoError(t, d.Put(ctx, fixture, custom))

	require.NoError(t, d.SeedDefaults(ctx))

	key, err := d.Key(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, custom, key, "seeding must not overwrite an existing user")
}

func TestDirectorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	ctx := context.Background()
	userID, key := uuid.New(), uuid.New()

	d, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, d.Put(ctx, userID, key))
	require.NoError(t, d.Close())

	d, err = OpenBolt(path)
	require.NoError(t, err)
	defer d.Close()

	got, err := d.Key(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestMemoryDirectory(t *testing.T) {
	d := NewMemoryDirectory()
	ctx := context.Background()
	userID, key := uuid.New(), uuid.New()

	_, err := d.Key(ctx, userID)
	require.ErrorIs(t, err, ErrNotFound)

	d.Put(userID, key)
	got, err := d.Key(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}
