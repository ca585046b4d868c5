package deletion

import (
	"context"
	"time"
)

// Scheduler creates and cancels the delayed executor invocation of an account.
// scheduler.Store satisfies it.
type Scheduler interface {
	CreateJob(ctx context.Context, accountID string, fireAt time.Time, target, deadLetterTarget string) (string, error)
	CancelJob(ctx context.Context, accountID string) error
}

// Notifier sends lifecycle emails. notification.Mailer satisfies it.
type Notifier interface {
	SendDeletionRequestedEmail(ctx context.Context, to, undoLink string, scheduledAt time.Time) error
	SendDeletionCancelledEmail(ctx context.Context, to string) error
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock, in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
