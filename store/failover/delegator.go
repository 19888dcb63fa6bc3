// Package failover orchestrates token store backends: it dispatches every
// operation to the first applicable backend in priority order, falls back on
// infrastructure failures, and drains fallback-accumulated state to the
// primary when it comes back.
package failover

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tokengate/tokengate/store"
)

// Migrator drains fallback state into the primary backend.
type Migrator interface {
	// Empty reports whether there is anything to migrate.
	Empty() bool
	// Migrate transfers pending state, preserving remaining TTLs.
	Migrate(ctx context.Context) (MigrationOutcome, error)
}

// Delegator is the single store.Backend the rest of the system talks to.
// It holds a fixed, priority-ordered backend list (primary first) and the
// identity of the backend that served the previous call, which is how a
// switch back to the primary is detected.
type Delegator struct {
	backends []store.Backend
	migrator Migrator

	mu         sync.Mutex
	lastActive string
}

var _ store.Backend = (*Delegator)(nil)

// New creates a delegator over the given backends, ordered by descending
// priority. The first backend is the primary: its re-activation triggers a
// best-effort migration.
func New(migrator Migrator, backends ...store.Backend) *Delegator {
	return &Delegator{backends: backends, migrator: migrator}
}

// Name implements store.Backend.
func (d *Delegator) Name() string { return "failover" }

// Applicable implements store.Backend. The delegator itself is always
// applicable; selection happens per concrete backend.
func (d *Delegator) Applicable(ctx context.Context) bool { return true }

// SaveToken implements store.Backend with failover.
func (d *Delegator) SaveToken(ctx context.Context, token string, userID uuid.UUID) error {
	_, err := execute(ctx, d, func(b store.Backend) (struct{}, error) {
		return struct{}{}, b.SaveToken(ctx, token, userID)
	})
	return err
}

// IsValid implements store.Backend with failover.
func (d *Delegator) IsValid(ctx context.Context, token string) (bool, error) {
	return execute(ctx, d, func(b store.Backend) (bool, error) {
		return b.IsValid(ctx, token)
	})
}

// OwnerOf implements store.Backend with failover.
func (d *Delegator) OwnerOf(ctx context.Context, token string) (string, error) {
	return execute(ctx, d, func(b store.Backend) (string, error) {
		return b.OwnerOf(ctx, token)
	})
}

// Revoke implements store.Backend with failover.
func (d *Delegator) Revoke(ctx context.Context, token string) (bool, error) {
	return execute(ctx, d, func(b store.Backend) (bool, error) {
		return b.Revoke(ctx, token)
	})
}

// execute runs op against the first applicable backend. Business errors
// propagate immediately; infrastructure errors are remembered and the next
// applicable backend is tried. If every applicable backend failed, the last
// infrastructure error is returned; if none was applicable at all,
// store.ErrNoBackend.
func execute[T any](ctx context.Context, d *Delegator, op func(store.Backend) (T, error)) (T, error) {
	var zero T
	var lastInfra error

	for i, b := range d.backends {
		if !b.Applicable(ctx) {
			continue
		}
		d.maybeMigrate(ctx, b, i == 0)

		v, err := op(b)
		if err == nil {
			return v, nil
		}
		if store.IsBusiness(err) {
			return zero, err
		}
		lastInfra = err
	}

	if lastInfra != nil {
		return zero, lastInfra
	}
	return zero, store.ErrNoBackend
}

// maybeMigrate runs migration when the active backend changed and the new
// one is the primary. The outcome is deliberately discarded: migration must
// never fail the user-facing operation that triggered it. The recorded
// active backend is updated regardless of how migration went.
func (d *Delegator) maybeMigrate(ctx context.Context, b store.Backend, primary bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := b.Name()
	if d.lastActive == name {
		return
	}
	if primary && d.migrator != nil && !d.migrator.Empty() {
		_, _ = d.migrator.Migrate(ctx)
	}
	d.lastActive = name
}
