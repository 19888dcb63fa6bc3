package users

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is a map-backed Directory for tests and demos.
type MemoryDirectory struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]uuid.UUID
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{keys: make(map[uuid.UUID]uuid.UUID)}
}

// Key implements Directory.
func (d *MemoryDirectory) Key(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[userID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%s: %w", userID, ErrNotFound)
	}
	return key, nil
}

// Put registers the secret key for a user.
func (d *MemoryDirectory) Put(userID, key uuid.UUID) {
	d.mu.Lock()
	d.keys[userID] = key
	d.mu.Unlock()
}
