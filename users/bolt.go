package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var usersBucket = []byte("users")

// BoltDirectory is a Directory backed by a BBolt database. Values are the
// secret key UUID stored under the user id.
type BoltDirectory struct {
	db *bbolt.DB
}

var _ Directory = (*BoltDirectory)(nil)

// OpenBolt opens (or creates) a BBolt-backed directory at the given path.
func OpenBolt(path string) (*BoltDirectory, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening user directory: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usersBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDirectory{db: db}, nil
}

// Close closes the underlying database.
func (d *BoltDirectory) Close() error {
	return d.db.Close()
}

// Key implements Directory.
func (d *BoltDirectory) Key(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var key uuid.UUID
	err := d.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(usersBucket).Get([]byte(userID.String()))
		if data == nil {
			return fmt.Errorf("%s: %w", userID, ErrNotFound)
		}
		parsed, err := uuid.Parse(string(data))
		if err != nil {
			return fmt.Errorf("corrupt secret for %s: %w", userID, err)
		}
		key = parsed
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return key, nil
}

// Put registers (or replaces) the secret key for a user.
func (d *BoltDirectory) Put(ctx context.Context, userID, key uuid.UUID) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).Put([]byte(userID.String()), []byte(key.String()))
	})
}

// SeedDefaults inserts the fixture users used by local deployments, keeping
// any that already exist.
func (d *BoltDirectory) SeedDefaults(ctx context.Context) error {
	fixtures := map[string]string{
		"11111111-1111-1111-1111-111111111111": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"22222222-2222-2222-2222-222222222222": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		for id, key := range fixtures {
			if b.Get([]byte(id)) != nil {
				continue
			}
			if err := b.Put([]byte(id), []byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
