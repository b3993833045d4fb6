package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/folio/internal"
	"github.com/DukeRupert/folio/internal/email"
	"github.com/DukeRupert/folio/internal/storage"
)

// mailer is the delivery side of the application: the sender handed to the
// contact service and, for SMTP, the selector that picks its transport.
type mailer struct {
	sender   email.Sender
	selector *email.Selector // nil unless MAIL_PROVIDER is smtp
}

// newSelector builds the transport selector from the SMTP settings.
func newSelector(cfg *internal.Config, transport email.Transport, logger *slog.Logger) *email.Selector {
	return email.NewSelector(email.SelectorConfig{
		Primary: email.TransportConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Secure:   cfg.SMTPSecure,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			Timeout:  cfg.SMTPTimeout,
			IPFamily: cfg.SMTPIPFamily,
		},
		Attempts: cfg.SMTPVerifyAttempts,
		Backoff:  cfg.SMTPVerifyBackoff,
	}, transport, nil, logger)
}

// newMailer picks the sender for the configured provider.
func newMailer(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*mailer, error) {
	switch cfg.MailProvider {
	case internal.MailProviderSMTP:
		transport := email.NewSMTPTransport(nil)
		selector := newSelector(cfg, transport, logger)
		sender := email.NewSMTPSender(selector, transport, email.SMTPSenderConfig{
			MaxAttempts: cfg.SMTPMaxAttempts,
			BaseDelay:   cfg.SMTPRetryBaseDelay,
		}, logger)
		return &mailer{sender: sender, selector: selector}, nil

	case internal.MailProviderSendGrid:
		return &mailer{sender: email.NewSendGridSender(email.SendGridConfig{APIKey: cfg.SendGridAPIKey}, logger)}, nil

	case internal.MailProviderSES:
		sender, err := email.NewSESSender(ctx, email.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("ses sender: %w", err)
		}
		return &mailer{sender: sender}, nil

	case internal.MailProviderLog:
		logger.Warn("No mail provider configured, contact messages will only be logged")
		return &mailer{sender: email.NewLogSender(logger)}, nil

	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

// newStorage opens attachment storage for the configured provider.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == storage.ProviderR2 {
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("r2 storage: %w", err)
		}
		return r2, nil
	}

	local, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: cfg.LocalStoragePath}, logger)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	return local, nil
}
