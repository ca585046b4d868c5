// Package account provides the account record store used by the deletion lifecycle.
//
// # Field ownership
//
// The deletion lifecycle owns Status and the Deletion sub-struct only. Every
// other field (profile, plan, storage usage, wallet balance, referral code) is
// owned by other subsystems and must survive every lifecycle write untouched.
// Repositories therefore expose targeted partial updates instead of a full
// overwrite.
//
// Email is never cleared by the lifecycle. Only the deletion executor may
// clear it, at purge time.
package account

import (
	"time"
)

// Status represents the lifecycle status of an account.
type Status string

// Account status values.
const (
	StatusActive          Status = "ACTIVE"
	StatusPendingDeletion Status = "PENDING_DELETION"
)

// Normalize returns the status, treating an empty value as ACTIVE.
func (s Status) Normalize() Status {
	if s == "" {
		return StatusActive
	}
	return s
}

// Account represents one tenant account record.
type Account struct {
	// ID is the opaque, stable account identifier (format: acc_XXXX).
	ID string

	// Email is the contact address used for lifecycle notifications.
	Email string

	// DisplayName is the public name shown on the gallery.
	DisplayName string

	// GallerySlug is the URL slug of the account's public gallery.
	GallerySlug string

	// Plan is the subscription plan identifier (owned by billing).
	Plan string

	// StorageUsedBytes is the current photo storage usage (owned by uploads).
	StorageUsedBytes int64

	// WalletBalanceCents is the prepaid wallet balance (owned by the wallet).
	WalletBalanceCents int64

	// ReferralCode is the account's own referral code (owned by referrals).
	ReferralCode string

	// Status is the lifecycle status.
	Status Status

	// Deletion is present only while Status is PENDING_DELETION.
	Deletion *Deletion

	// Version is incremented on every lifecycle write and used for
	// optimistic concurrency control.
	Version int64

	// CreatedAt is when the account was created.
	CreatedAt time.Time

	// UpdatedAt is when the account was last updated.
	UpdatedAt time.Time
}

// Deletion holds the metadata of a pending deletion request.
type Deletion struct {
	// RequestedAt is when the deletion was requested.
	RequestedAt time.Time

	// ScheduledAt is the instant the grace period elapses.
	ScheduledAt time.Time

	// Reason is a free-form tag, e.g. "manual".
	Reason string

	// UndoToken is the bearer credential embedded in the emailed undo link.
	UndoToken string
}

// IsPendingDeletion reports whether the account is pending deletion.
func (a *Account) IsPendingDeletion() bool {
	return a.Status.Normalize() == StatusPendingDeletion && a.Deletion != nil
}

// CurrentStatus returns the normalized status.
func (a *Account) CurrentStatus() Status {
	return a.Status.Normalize()
}

// copyAccount creates a deep copy of an account.
func copyAccount(a *Account) *Account {
	if a == nil {
		return nil
	}

	accountCopy := *a
	if a.Deletion != nil {
		d := *a.Deletion
		accountCopy.Deletion = &d
	}
	return &accountCopy
}
