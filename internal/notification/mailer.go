package notification

import (
	"context"
	"fmt"
	"html"
	"time"
)

// Subjects of the lifecycle emails.
const (
	SubjectDeletionRequested = "Potwierdzenie prośby o usunięcie konta"
	SubjectDeletionCancelled = "Usunięcie konta zostało anulowane"
)

// Mailer composes the account deletion emails. Bodies are deliberately
// minimal; branded templates are rendered elsewhere.
type Mailer struct {
	sender   Sender
	location *time.Location
}

// NewMailer creates a Mailer. Dates are formatted in loc, or UTC if nil.
func NewMailer(sender Sender, loc *time.Location) *Mailer {
	if loc == nil {
		loc = time.UTC
	}
	return &Mailer{sender: sender, location: loc}
}

// SendDeletionRequestedEmail tells the owner when the account will be purged
// and how to undo it.
func (m *Mailer) SendDeletionRequestedEmail(ctx context.Context, to, undoLink string, scheduledAt time.Time) error {
	body := fmt.Sprintf(
		`<p>Otrzymaliśmy prośbę o usunięcie Twojego konta.</p>`+
			`<p>Konto i wszystkie galerie zostaną trwale usunięte <strong>%s</strong>.</p>`+
			`<p>Jeśli to pomyłka, <a href="%s">przywróć konto</a> przed tym terminem.</p>`,
		html.EscapeString(scheduledAt.In(m.location).Format("2006-01-02 15:04 MST")),
		html.EscapeString(undoLink),
	)

	_, err := m.sender.Send(ctx, SendRequest{
		To:      []string{to},
		Subject: SubjectDeletionRequested,
		HTML:    body,
	})
	return err
}

// SendDeletionCancelledEmail confirms that the account stays active.
func (m *Mailer) SendDeletionCancelledEmail(ctx context.Context, to string) error {
	_, err := m.sender.Send(ctx, SendRequest{
		To:      []string{to},
		Subject: SubjectDeletionCancelled,
		HTML:    `<p>Usunięcie Twojego konta zostało anulowane. Konto pozostaje aktywne.</p>`,
	})
	return err
}
