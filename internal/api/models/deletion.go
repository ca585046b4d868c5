package models

// AccountStatus is the lifecycle status reported to clients.
type AccountStatus string

const (
	AccountStatusActive          AccountStatus = "ACTIVE"
	AccountStatusPendingDeletion AccountStatus = "PENDING_DELETION"
)

// DeletionRequestInput is the body of POST /v1/me/deletion.
type DeletionRequestInput struct {
	// Confirmation must equal the confirmation phrase exactly.
	Confirmation string `json:"confirmation" validate:"required"`

	// Reason is an optional free-form tag. Defaults to "manual".
	Reason string `json:"reason,omitempty" validate:"max=200"`
}

// DeletionRequested is returned when a deletion has been scheduled.
type DeletionRequested struct {
	Status              AccountStatus `json:"status"`
	DeletionScheduledAt Timestamp     `json:"deletionScheduledAt"`
}

// DeletionCancelled is returned when a pending deletion has been cancelled.
type DeletionCancelled struct {
	Status  AccountStatus `json:"status"`
	Message string        `json:"message"`
}

// DeletionStatus describes the account's lifecycle state.
type DeletionStatus struct {
	Status              AccountStatus `json:"status"`
	DeletionRequestedAt *Timestamp    `json:"deletionRequestedAt,omitempty"`
	DeletionScheduledAt *Timestamp    `json:"deletionScheduledAt,omitempty"`
	DeletionReason      string        `json:"deletionReason,omitempty"`
}
