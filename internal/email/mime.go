package email

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/gomail.v2"
)

// buildMIME assembles msg as a gomail message. The attachment is streamed
// from msg.Attachment.Open each time the message is written, so the same
// value can be written once per delivery attempt.
func buildMIME(ctx context.Context, msg *Message, messageID string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetDateHeader("Date", time.Now())

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	if att := msg.Attachment; att != nil {
		m.Attach(att.Filename,
			gomail.SetHeader(map[string][]string{
				"Content-Type": {fmt.Sprintf("%s; name=%q", att.ContentType, att.Filename)},
			}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				if att.Open == nil {
					return fmt.Errorf("attachment %q has no content", att.Filename)
				}
				rc, err := att.Open(ctx)
				if err != nil {
					return fmt.Errorf("open attachment %q: %w", att.Filename, err)
				}
				defer rc.Close()
				_, err = io.Copy(w, rc)
				return err
			}),
		)
	}

	return m
}
