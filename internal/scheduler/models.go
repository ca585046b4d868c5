// Package scheduler stores one-shot, time-triggered invocations of the
// account deletion executor. At most one live job exists per account.
package scheduler

import (
	"context"
	"errors"
	"time"
)

// Scheduler errors.
var (
	// ErrJobNotFound is returned by CancelJob when no job is scheduled for
	// the account. Callers treat it as success: the job may have fired
	// already or never been created.
	ErrJobNotFound = errors.New("scheduled job not found")

	ErrInvalidJob = errors.New("invalid job")
)

// Job is a scheduled executor invocation for one account.
type Job struct {
	// ID is the job identifier (format: job_XXXX).
	ID string

	// AccountID is the account to purge.
	AccountID string

	// FireAt is when the executor should be invoked.
	FireAt time.Time

	// Target is the executor destination (a Pub/Sub topic).
	Target string

	// DeadLetterTarget receives the invocation when Target cannot.
	DeadLetterTarget string

	CreatedAt time.Time
}

// Store creates, cancels and claims scheduled jobs.
type Store interface {
	// CreateJob schedules an invocation of target at fireAt for the account.
	// Any previous job for the account is replaced.
	CreateJob(ctx context.Context, accountID string, fireAt time.Time, target, deadLetterTarget string) (string, error)

	// CancelJob removes the account's job. Returns ErrJobNotFound if none exists.
	CancelJob(ctx context.Context, accountID string) error

	// ClaimDue removes and returns up to limit jobs with FireAt <= now.
	// A job is returned to at most one concurrent caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// Requeue puts a claimed job back unless the account already has a job,
	// which is then newer and wins. Reports whether the job was stored.
	Requeue(ctx context.Context, job Job) (bool, error)
}

func validateJob(accountID string, fireAt time.Time, target string) error {
	if accountID == "" {
		return errors.Join(ErrInvalidJob, errors.New("account id is required"))
	}
	if fireAt.IsZero() {
		return errors.Join(ErrInvalidJob, errors.New("fire time is required"))
	}
	if target == "" {
		return errors.Join(ErrInvalidJob, errors.New("target is required"))
	}
	return nil
}
