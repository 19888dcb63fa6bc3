// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"

	"github.com/tokengate/tokengate/store"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// ListenAddr is the address the HTTP server listens on (e.g. :8080).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// DataDir is the directory for the bbolt user directory.
	DataDir string `mapstructure:"DATA_DIR"`

	// RedisAddr is the primary store address (host:port). Empty disables
	// the primary backend entirely; the service then runs on the
	// in-memory fallback only.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisDB is the Redis logical database number.
	RedisDB int `mapstructure:"REDIS_DB"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisTimeout bounds dial/read/write on every Redis operation so an
	// outage surfaces as a failover-triggering error, never a hang.
	RedisTimeout string `mapstructure:"REDIS_TIMEOUT"`

	// TokenTTL is the access token lifetime (e.g. "15m"). Also the block
	// duration applied when the session limit is crossed.
	TokenTTL string `mapstructure:"TOKEN_TTL"`
	// MaxTokens is the per-user concurrent session limit.
	MaxTokens int `mapstructure:"MAX_TOKENS"`
	// BlockPrefix prefixes block marker keys in the shared store.
	BlockPrefix string `mapstructure:"BLOCK_PREFIX"`

	// IssueInterval is the minimum interval between issue requests from
	// the same user (e.g. "1s").
	IssueInterval string `mapstructure:"RATE_ISSUE_INTERVAL"`
	// ValidateInterval is the minimum interval between validate requests
	// from the same user.
	ValidateInterval string `mapstructure:"RATE_VALIDATE_INTERVAL"`

	// LogDir is the directory scanned by the log archiver. Empty disables
	// archiving.
	LogDir string `mapstructure:"LOG_DIR"`
	// ArchiveInterval is the delay between archiver runs (e.g. "72h").
	ArchiveInterval string `mapstructure:"ARCHIVE_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_TIMEOUT", "3s")
	v.SetDefault("TOKEN_TTL", "15m")
	v.SetDefault("MAX_TOKENS", 4)
	v.SetDefault("BLOCK_PREFIX", "blocked:")
	v.SetDefault("RATE_ISSUE_INTERVAL", "1s")
	v.SetDefault("RATE_VALIDATE_INTERVAL", "500ms")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("ARCHIVE_INTERVAL", "72h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("config: LISTEN_ADDR must be set")
	}
	if cfg.MaxTokens < 1 {
		return nil, errors.New("config: MAX_TOKENS must be at least 1")
	}
	if d := cfg.TTL(); d <= 0 {
		return nil, errors.New("config: TOKEN_TTL must be a positive duration")
	}
	if cfg.BlockPrefix == "" {
		return nil, errors.New("config: BLOCK_PREFIX must be set")
	}

	return &cfg, nil
}

// TTL parses TokenTTL. Returns 0 if unset or invalid; Load rejects that.
func (c *Config) TTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return 0
	}
	return d
}

// Store builds the store.Config shared by all backends.
func (c *Config) Store() store.Config {
	return store.Config{
		TokenTTL:    c.TTL(),
		MaxTokens:   c.MaxTokens,
		BlockPrefix: c.BlockPrefix,
	}
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IssueRate returns the issue endpoint's minimum interval (default 1s).
func (c *Config) IssueRate() time.Duration {
	return durationOr(c.IssueInterval, time.Second)
}

// ValidateRate returns the validate endpoint's minimum interval (default 500ms).
func (c *Config) ValidateRate() time.Duration {
	return durationOr(c.ValidateInterval, 500*time.Millisecond)
}

// ArchiveEvery returns the archiver cadence (default 72h).
func (c *Config) ArchiveEvery() time.Duration {
	return durationOr(c.ArchiveInterval, 72*time.Hour)
}

// RedisOpTimeout returns the per-operation Redis deadline (default 3s).
func (c *Config) RedisOpTimeout() time.Duration {
	return durationOr(c.RedisTimeout, 3*time.Second)
}
