// Package notification sends transactional account emails through an
// external provider.
package notification

import (
	"context"
	"time"
)

// SendRequest contains the data needed to send an email.
type SendRequest struct {
	To      []string
	From    string // overrides the sender default when set
	Subject string
	HTML    string
	ReplyTo string
}

// SendResult contains the provider's response.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers emails via an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
