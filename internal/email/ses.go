package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/DukeRupert/folio/internal/metrics"
)

// =============================================================================
// SES Sender
// =============================================================================

// SESConfig holds AWS SES v2 settings. Static credentials are optional;
// without them the default AWS credential chain is used.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the SES v2 operation used by SESSender.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers a message with one SES SendEmail call using a raw
// MIME body. It is not retried and does not use the transport Selector.
type SESSender struct {
	client SendEmailAPI
	logger *slog.Logger
}

// NewSESSender loads AWS configuration and creates an SES sender.
func NewSESSender(ctx context.Context, cfg SESConfig, logger *slog.Logger) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESSenderWithClient(sesv2.NewFromConfig(awsCfg), logger), nil
}

// NewSESSenderWithClient creates an SES sender around an existing client.
func NewSESSenderWithClient(client SendEmailAPI, logger *slog.Logger) *SESSender {
	return &SESSender{
		client: client,
		logger: logger.With("provider", ProviderSES),
	}
}

// Name implements Sender.
func (s *SESSender) Name() string {
	return ProviderSES
}

// Send implements Sender. The returned ID is the SES message ID.
func (s *SESSender) Send(ctx context.Context, msg *Message) (string, error) {
	start := time.Now()

	var raw bytes.Buffer
	if _, err := buildMIME(ctx, msg, newMessageID(msg.From)).WriteTo(&raw); err != nil {
		return "", fmt.Errorf("build raw message: %w", err)
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw.Bytes()},
		},
	})
	if err != nil {
		metrics.DeliveryAttempt(ProviderSES, sesOutcome(err))
		metrics.DeliveryFailed(ProviderSES, time.Since(start))
		return "", fmt.Errorf("ses send: %w", err)
	}

	messageID := aws.ToString(out.MessageId)
	metrics.DeliveryAttempt(ProviderSES, "success")
	metrics.DeliverySent(ProviderSES, time.Since(start))
	s.logger.Info("message sent",
		"message_id", messageID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return messageID, nil
}

// sesOutcome labels an SES error: client faults such as an unverified
// sender are permanent, everything else is transient.
func sesOutcome(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return "permanent"
	}
	return "transient"
}

var _ Sender = (*SESSender)(nil)
