package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/DukeRupert/folio/internal/metrics"
)

// =============================================================================
// SendGrid Sender
// =============================================================================

const sendGridEndpoint = "/v3/mail/send"

// SendGridConfig holds SendGrid API settings.
type SendGridConfig struct {
	APIKey  string
	Host    string        // Defaults to https://api.sendgrid.com
	Timeout time.Duration // HTTP client timeout, default 30s
}

// SendGridSender delivers a message with one SendGrid v3 API call. It is
// not retried and does not use the transport Selector.
type SendGridSender struct {
	apiKey string
	host   string
	client *rest.Client
	logger *slog.Logger
}

// NewSendGridSender creates a SendGrid sender.
func NewSendGridSender(cfg SendGridConfig, logger *slog.Logger) *SendGridSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SendGridSender{
		apiKey: cfg.APIKey,
		host:   cfg.Host,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: cfg.Timeout}},
		logger: logger.With("provider", ProviderSendGrid),
	}
}

// Name implements Sender.
func (s *SendGridSender) Name() string {
	return ProviderSendGrid
}

// Send implements Sender. The returned ID is SendGrid's X-Message-Id.
func (s *SendGridSender) Send(ctx context.Context, msg *Message) (string, error) {
	start := time.Now()

	body, err := s.buildMail(ctx, msg)
	if err != nil {
		return "", err
	}

	request := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(body)

	resp, err := s.client.SendWithContext(ctx, request)
	if err != nil {
		metrics.DeliveryAttempt(ProviderSendGrid, "transient")
		metrics.DeliveryFailed(ProviderSendGrid, time.Since(start))
		return "", fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 300 {
		outcome := "transient"
		if resp.StatusCode < 500 {
			outcome = "permanent"
		}
		metrics.DeliveryAttempt(ProviderSendGrid, outcome)
		metrics.DeliveryFailed(ProviderSendGrid, time.Since(start))
		return "", fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	messageID := http.Header(resp.Headers).Get("X-Message-Id")
	metrics.DeliveryAttempt(ProviderSendGrid, "success")
	metrics.DeliverySent(ProviderSendGrid, time.Since(start))
	s.logger.Info("message sent",
		"message_id", messageID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return messageID, nil
}

func (s *SendGridSender) buildMail(ctx context.Context, msg *Message) (*mail.SGMailV3, error) {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", msg.From))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	m.AddPersonalizations(p)

	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}

	// SendGrid requires text/plain before text/html.
	if msg.TextBody != "" {
		m.AddContent(mail.NewContent("text/plain", msg.TextBody))
	}
	if msg.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	if msg.Attachment != nil {
		data, err := msg.Attachment.ReadAll(ctx)
		if err != nil {
			return nil, err
		}
		a := mail.NewAttachment().
			SetContent(base64.StdEncoding.EncodeToString(data)).
			SetType(msg.Attachment.ContentType).
			SetFilename(msg.Attachment.Filename).
			SetDisposition("attachment")
		m.AddAttachment(a)
	}

	return m, nil
}

var _ Sender = (*SendGridSender)(nil)
