package deletion

import (
	"errors"
	"fmt"
	"time"

	"github.com/michalmalinowski87/photo-sub008/internal/account"
)

// Lifecycle errors. Precondition failures are returned to the caller as the
// operation's result; side-effect failures never are.
var (
	ErrUnauthenticated       = errors.New("no verified caller")
	ErrAccountNotFound       = account.ErrAccountNotFound
	ErrInvalidConfirmation   = errors.New("confirmation phrase does not match")
	ErrAlreadyPending        = errors.New("account deletion already pending")
	ErrNoPendingDeletion     = errors.New("no pending account deletion")
	ErrInvalidOrExpiredToken = errors.New("undo link is invalid or expired")
	ErrAlreadyProcessed      = errors.New("account deletion already processed")
	ErrConfigurationMissing  = errors.New("deletion service is not configured")

	// ErrConflict is returned when another writer changed the account between
	// read and write. The caller may retry.
	ErrConflict = errors.New("account was modified concurrently, retry")
)

// AlreadyPendingError carries the unchanged schedule of an existing request.
type AlreadyPendingError struct {
	ScheduledAt time.Time
}

func (e *AlreadyPendingError) Error() string {
	return fmt.Sprintf("%s (scheduled at %s)", ErrAlreadyPending, e.ScheduledAt.UTC().Format(time.RFC3339))
}

func (e *AlreadyPendingError) Unwrap() error {
	return ErrAlreadyPending
}
