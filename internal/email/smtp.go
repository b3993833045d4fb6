package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/DukeRupert/folio/internal/metrics"
)

// =============================================================================
// SMTP Sender
// =============================================================================

// TransportSource supplies the configuration to send through. *Selector
// implements it.
type TransportSource interface {
	Current() TransportConfig
}

// SMTPSenderConfig holds retry settings for SMTPSender.
type SMTPSenderConfig struct {
	MaxAttempts int           // Default 3
	BaseDelay   time.Duration // Default 500ms
}

// SMTPSender delivers messages over SMTP with bounded retries.
//
// The transport configuration is read from the source on every attempt, so
// a fallback chosen by the Selector takes effect for the next attempt.
// After failed attempt n (1-based) the sender waits BaseDelay x 2^n.
// Replies with a 5xx code are permanent and are not retried.
type SMTPSender struct {
	source    TransportSource
	transport Transport
	cfg       SMTPSenderConfig
	logger    *slog.Logger
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(source TransportSource, transport Transport, cfg SMTPSenderConfig, logger *slog.Logger) *SMTPSender {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	return &SMTPSender{
		source:    source,
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("provider", ProviderSMTP),
	}
}

// Name implements Sender.
func (s *SMTPSender) Name() string {
	return ProviderSMTP
}

// Send implements Sender. The returned ID is the generated Message-ID.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) (string, error) {
	messageID := newMessageID(msg.From)
	m := buildMIME(ctx, msg, messageID)
	start := time.Now()

	attempt := 0
	b := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return s.cfg.BaseDelay << uint(attempt), false
	}))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		cfg := s.source.Current()

		err := s.transport.Send(ctx, cfg, msg.From, []string{msg.To}, m)
		if err == nil {
			metrics.DeliveryAttempt(ProviderSMTP, "success")
			return nil
		}

		if IsPermanent(err) {
			metrics.DeliveryAttempt(ProviderSMTP, "permanent")
			s.logger.Error("permanent SMTP failure, not retrying",
				"transport", cfg.String(),
				"attempt", attempt,
				"error", err,
			)
			return err
		}

		metrics.DeliveryAttempt(ProviderSMTP, "transient")
		logArgs := []any{
			"transport", cfg.String(),
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
			"error", err,
		}
		if attempt < s.cfg.MaxAttempts {
			logArgs = append(logArgs, "retry_in", s.cfg.BaseDelay<<uint(attempt))
		}
		s.logger.Warn("SMTP send attempt failed", logArgs...)
		return retry.RetryableError(err)
	})

	if err != nil {
		metrics.DeliveryFailed(ProviderSMTP, time.Since(start))
		return "", fmt.Errorf("smtp send failed after %d attempt(s): %w", attempt, err)
	}

	metrics.DeliverySent(ProviderSMTP, time.Since(start))
	s.logger.Info("message sent",
		"message_id", messageID,
		"attempts", attempt,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return messageID, nil
}

// IsPermanent reports whether err is an SMTP reply that retrying cannot
// fix, such as a rejected recipient or failed authentication (5xx).
func IsPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}

var _ Sender = (*SMTPSender)(nil)
