// Package email delivers contact messages to the site owner.
//
// Three delivery strategies implement Sender:
//   - SMTPSender: direct SMTP through the transport picked by a Selector,
//     with bounded exponential-backoff retries
//   - SendGridSender and SESSender: a single transactional API call
//   - LogSender: logs the message instead of sending it (development)
package email

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Sender delivers one message and reports a single outcome.
//
// Implementations own their retry policy. The returned message ID is the
// provider's identifier when it exposes one, otherwise the Message-ID
// header generated for the message.
type Sender interface {
	Send(ctx context.Context, msg *Message) (messageID string, err error)

	// Name identifies the provider in logs and metrics (e.g., "smtp").
	Name() string
}

// Provider names reported by Sender.Name.
const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
	ProviderLog      = "log"
)

// =============================================================================
// Message Types
// =============================================================================

// Message is a rendered email ready for delivery.
type Message struct {
	From     string // Envelope and header sender
	To       string // Single recipient
	ReplyTo  string // Submitter address, optional
	Subject  string
	HTMLBody string
	TextBody string

	// Attachment is optional. Its content is opened lazily on every
	// delivery attempt so retries re-read it from storage.
	Attachment *Attachment
}

// Attachment is a file attached to a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64

	// Open returns a fresh reader for the attachment content.
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// ReadAll loads the whole attachment into memory. API senders need the
// bytes up front to base64-encode them into the request.
func (a *Attachment) ReadAll(ctx context.Context) ([]byte, error) {
	if a.Open == nil {
		return nil, fmt.Errorf("attachment %q has no content", a.Filename)
	}
	rc, err := a.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open attachment %q: %w", a.Filename, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read attachment %q: %w", a.Filename, err)
	}
	return data, nil
}

// newMessageID returns an RFC 5322 Message-ID using the sender's domain.
func newMessageID(from string) string {
	domain := ""
	if at := strings.LastIndexByte(from, '@'); at >= 0 {
		domain = strings.TrimRight(from[at+1:], "> ")
	}
	if domain == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			domain = host
		} else {
			domain = "localhost"
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
