// Package mailer defines the mail collaborator contract the scheduler
// hands send_email payloads to. Delivery and retries belong to the mail
// layer, not the core.
package mailer

import (
	"context"

	"classhub/pkg/logger"
	"classhub/pkg/models"
)

// Mailer accepts a mail for delivery. Send is fire-and-forget from the
// scheduler's point of view; an error is surfaced but never retried here.
type Mailer interface {
	Send(ctx context.Context, mail models.SendEmailData) error
}

// LogMailer records outgoing mail without delivering it. Used in
// development and as the default when no transport is configured.
type LogMailer struct{}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// Send logs the mail envelope.
func (m *LogMailer) Send(_ context.Context, mail models.SendEmailData) error {
	logger.WithFields(map[string]interface{}{
		"to":      mail.To,
		"subject": mail.Subject,
	}).Info("mail handed off (log transport)")
	return nil
}
