package store

import (
	"errors"
	"fmt"

	"vodpipe/internal/services"
)

var (
	// ErrNotFound reports a missing video.
	ErrNotFound = fmt.Errorf("video %w", services.ErrNotFound)
	// ErrInvalidTransition reports a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicate reports an insert that collided with an existing identifier.
	ErrDuplicate = errors.New("duplicate record")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// Wrap tags err as a persistence failure for op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return services.Wrap(services.ErrPersistence, "store", op, "", err)
}
