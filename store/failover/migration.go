package failover

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MigrationOutcome reports how a migration attempt ended, so callers can
// log or discard it explicitly instead of guessing from an error value.
type MigrationOutcome int

const (
	// MigrationSkipped means there was nothing to migrate.
	MigrationSkipped MigrationOutcome = iota
	// MigrationDone means every pending entry was transferred and the
	// fallback was cleared.
	MigrationDone
	// MigrationFailed means at least one write to the primary failed; the
	// fallback was left intact so the next switch-over retries.
	MigrationFailed
)

func (o MigrationOutcome) String() string {
	switch o {
	case MigrationSkipped:
		return "skipped"
	case MigrationDone:
		return "done"
	case MigrationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FallbackState is the read/clear view of the in-memory backend that
// migration drains.
type FallbackState interface {
	Snapshot() (tokens map[uuid.UUID]map[string]time.Time, blocks map[uuid.UUID]time.Time)
	Empty() bool
	ClearMigrated()
}

// PrimaryWriter recreates token and block state on the primary backend with
// explicit remaining TTLs. Writes must be idempotent.
type PrimaryWriter interface {
	RestoreToken(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	RestoreBlock(ctx context.Context, userID uuid.UUID, ttl time.Duration) error
}

// TokenMigrator transfers fallback-accumulated tokens and blocks to the
// primary, preserving each entry's remaining TTL. Entries already expired at
// migration time are dropped, never transferred.
type TokenMigrator struct {
	fallback FallbackState
	primary  PrimaryWriter
	now      func() time.Time
}

var _ Migrator = (*TokenMigrator)(nil)

// NewTokenMigrator wires a migrator between the fallback store and the
// primary writer.
func NewTokenMigrator(fallback FallbackState, primary PrimaryWriter) *TokenMigrator {
	return &TokenMigrator{fallback: fallback, primary: primary, now: time.Now}
}

// Empty implements Migrator.
func (m *TokenMigrator) Empty() bool { return m.fallback.Empty() }

// Migrate implements Migrator. It is not transactional: a partial failure
// leaves already-written primary entries in place (idempotent rewrites on
// retry) and does not clear the fallback, so genuinely unmigrated data is
// re-attempted on the next backend switch. The fallback is cleared only
// after every entry has been attempted without error.
func (m *TokenMigrator) Migrate(ctx context.Context) (MigrationOutcome, error) {
	tokens, blocks := m.fallback.Snapshot()
	if len(tokens) == 0 && len(blocks) == 0 {
		return MigrationSkipped, nil
	}
	now := m.now()

	for userID, until := range blocks {
		ttl := until.Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := m.primary.RestoreBlock(ctx, userID, ttl); err != nil {
			return MigrationFailed, err
		}
	}

	for userID, owned := range tokens {
		for token, expiresAt := range owned {
			ttl := expiresAt.Sub(now)
			if ttl <= 0 {
				continue
			}
			if err := m.primary.RestoreToken(ctx, token, userID, ttl); err != nil {
				return MigrationFailed, err
			}
		}
	}

	m.fallback.ClearMigrated()
	return MigrationDone, nil
}
