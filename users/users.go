// Package users resolves the shared secret registered for a user id. The
// issuance handler authenticates callers against it before the token store
// is touched.
package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound indicates the user id has no registered secret. Any other
// error from a Directory is infrastructure-class and maps to a temporary
// unavailability condition at the transport boundary.
var ErrNotFound = errors.New("user not found")

// Directory looks up the shared secret for a user id.
type Directory interface {
	Key(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}
