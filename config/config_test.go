package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 4, cfg.MaxTokens)
	assert.Equal(t, 15*time.Minute, cfg.TTL())
	assert.Equal(t, "blocked:", cfg.BlockPrefix)
	assert.Equal(t, time.Second, cfg.IssueRate())
	assert.Equal(t, 500*time.Millisecond, cfg.ValidateRate())
	assert.Equal(t, 72*time.Hour, cfg.ArchiveEvery())
	assert.Equal(t, 3*time.Second, cfg.RedisOpTimeout())
	assert.Empty(t, cfg.LogDir)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("MAX_TOKENS", "2")
	t.Setenv("RATE_ISSUE_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.TTL())
	assert.Equal(t, 2, cfg.MaxTokens)
	assert.Equal(t, 2*time.Second, cfg.IssueRate())
}

func TestLoadRejectsZeroMaxTokens(t *testing.T) {
	t.Setenv("MAX_TOKENS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("TOKEN_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestStoreConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	sc := cfg.Store()
	assert.Equal(t, 15*time.Minute, sc.TokenTTL)
	assert.Equal(t, 4, sc.MaxTokens)
	assert.Equal(t, "blocked:", sc.BlockPrefix)
}

func TestBadIntervalFallsBackToDefault(t *testing.T) {
	t.Setenv("RATE_VALIDATE_INTERVAL", "often")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.ValidateRate())
}
