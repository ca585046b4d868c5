package account

import (
	"context"
	"errors"
)

// Repository errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrVersionConflict = errors.New("account was modified concurrently")
)

// Repository defines the interface for account record persistence.
//
// Lifecycle writes are partial updates guarded by the version observed at
// read time. A stale version yields ErrVersionConflict and leaves the record
// untouched.
type Repository interface {
	// Get retrieves an account by ID.
	Get(ctx context.Context, id string) (*Account, error)

	// FindByUndoToken retrieves the pending-deletion account holding the given
	// undo token. Returns ErrAccountNotFound if no pending account matches.
	FindByUndoToken(ctx context.Context, token string) (*Account, error)

	// MarkPendingDeletion sets the status to PENDING_DELETION and writes the
	// deletion fields. No other field is modified.
	MarkPendingDeletion(ctx context.Context, id string, expectedVersion int64, deletion Deletion) error

	// RestoreActive sets the status to ACTIVE and clears the deletion fields.
	// No other field is modified.
	RestoreActive(ctx context.Context, id string, expectedVersion int64) error
}
