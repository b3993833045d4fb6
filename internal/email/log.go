package email

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/folio/internal/metrics"
)

// LogSender logs messages instead of delivering them. It is used when no
// mail provider is configured so the contact form still works locally.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("provider", ProviderLog)}
}

// Name implements Sender.
func (s *LogSender) Name() string {
	return ProviderLog
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg *Message) (string, error) {
	messageID := newMessageID(msg.From)

	args := []any{
		"message_id", messageID,
		"to", msg.To,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"body", msg.TextBody,
	}
	if msg.Attachment != nil {
		args = append(args,
			"attachment", msg.Attachment.Filename,
			"attachment_size", msg.Attachment.Size,
		)
	}
	s.logger.InfoContext(ctx, "mail provider not configured, logging message", args...)

	metrics.DeliveryAttempt(ProviderLog, "success")
	metrics.DeliverySent(ProviderLog, 0)
	return messageID, nil
}

var _ Sender = (*LogSender)(nil)
