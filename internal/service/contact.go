package service

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/DukeRupert/folio/internal/domain"
	"github.com/DukeRupert/folio/internal/email"
	"github.com/DukeRupert/folio/internal/metrics"
	"github.com/DukeRupert/folio/internal/storage"
)

// Upload is a file received with a contact submission, before storage.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64 // Declared size; -1 if unknown
	Body        io.Reader
}

// ContactService defines the interface for relaying contact submissions.
type ContactService interface {
	// Submit validates the submission and optional upload, stores the
	// upload, and delivers the message. The stored attachment is deleted
	// after a successful delivery and kept after a failed one.
	Submit(ctx context.Context, sub *domain.ContactSubmission, upload *Upload) (messageID string, err error)

	// PurgeStaleAttachments deletes stored attachments older than maxAge
	// and returns how many were removed.
	PurgeStaleAttachments(ctx context.Context, maxAge time.Duration) (int, error)
}

// ContactConfig holds the addressing and upload policy for contact mail.
type ContactConfig struct {
	From     string // Sender address on relayed mail
	Receiver string // Site owner's mailbox
	Policy   domain.AttachmentPolicy
}

// contactService implements ContactService.
type contactService struct {
	sender email.Sender
	store  storage.Storage
	cfg    ContactConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewContactService creates a new ContactService.
func NewContactService(sender email.Sender, store storage.Storage, cfg ContactConfig, logger *slog.Logger) ContactService {
	return &contactService{
		sender: sender,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Submit relays one contact submission.
func (s *contactService) Submit(ctx context.Context, sub *domain.ContactSubmission, upload *Upload) (string, error) {
	const op = "ContactService.Submit"

	sub.Normalize()
	if err := sub.Validate(); err != nil {
		metrics.ContactSubmissionsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	if upload != nil {
		att, err := s.storeUpload(ctx, upload)
		if err != nil {
			if domain.ErrorCode(err) == domain.EINTERNAL {
				metrics.ContactSubmissionsTotal.WithLabelValues("failed").Inc()
			} else {
				metrics.ContactSubmissionsTotal.WithLabelValues("rejected").Inc()
			}
			return "", err
		}
		sub.Attachment = att
	}

	msg, err := email.NewContactMessage(sub, s.cfg.From, s.cfg.Receiver, s.now())
	if err != nil {
		s.logger.Error("failed to render contact message", "error", err, "op", op)
		s.discard(ctx, sub)
		metrics.ContactSubmissionsTotal.WithLabelValues("failed").Inc()
		return "", domain.Internal(err, op, "Failed to prepare message")
	}
	if sub.HasAttachment() {
		msg.Attachment = s.mailAttachment(sub.Attachment)
	}

	messageID, err := s.sender.Send(ctx, msg)
	if err != nil {
		logArgs := []any{"error", err, "op", op, "provider", s.sender.Name()}
		if sub.HasAttachment() {
			// Kept so the message can be resent by hand.
			logArgs = append(logArgs, "attachment_key", sub.Attachment.Key)
		}
		s.logger.Error("failed to deliver contact message", logArgs...)
		metrics.ContactSubmissionsTotal.WithLabelValues("failed").Inc()
		return "", domain.Delivery(err, op)
	}

	s.discard(ctx, sub)
	metrics.ContactSubmissionsTotal.WithLabelValues("sent").Inc()
	s.logger.Info("contact message sent",
		"message_id", messageID,
		"provider", s.sender.Name(),
		"sender_kind", sub.Kind,
		"has_attachment", sub.HasAttachment(),
	)

	return messageID, nil
}

// PurgeStaleAttachments removes attachments left behind by failed deliveries.
func (s *contactService) PurgeStaleAttachments(ctx context.Context, maxAge time.Duration) (int, error) {
	const op = "ContactService.PurgeStaleAttachments"

	objs, err := s.store.List(ctx, storage.AttachmentPrefix)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to list attachments")
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, obj := range objs {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.logger.Warn("failed to purge stale attachment", "key", obj.Key, "error", err, "op", op)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("purged stale attachments", "count", removed, "max_age", maxAge.String())
	}
	return removed, nil
}

// storeUpload checks the upload against the policy and writes it to
// storage. Nothing is stored when the policy rejects it.
func (s *contactService) storeUpload(ctx context.Context, up *Upload) (*domain.Attachment, error) {
	const op = "ContactService.storeUpload"

	// Peek so a generic declared type can still be resolved by sniffing
	// without consuming the body.
	body := bufio.NewReaderSize(up.Body, 512)
	head, _ := body.Peek(512)
	contentType := storage.DetectContentType(up.ContentType, up.Filename, bytes.NewReader(head))
	// An unknown size (-1) is enforced while streaming instead.
	declared := domain.Attachment{ContentType: contentType, Size: max(up.Size, 0)}
	if err := s.cfg.Policy.Check(declared); err != nil {
		return nil, err
	}

	key := storage.AttachmentKey(up.Filename, s.now())
	counted := &countingReader{r: body}
	err := s.store.Put(ctx, key, counted, storage.PutOptions{
		ContentType: contentType,
		Size:        max(up.Size, 0),
		MaxSize:     s.cfg.Policy.MaxBytes,
	})
	if err != nil {
		if storage.IsTooLarge(err) {
			return nil, s.cfg.Policy.TooLargeError()
		}
		s.logger.Error("failed to store attachment", "error", err, "op", op, "key", key)
		return nil, domain.Internal(err, op, "Failed to store attachment")
	}

	metrics.AttachmentBytes.Observe(float64(counted.n))

	return &domain.Attachment{
		Filename:    storage.SanitizeFilename(up.Filename),
		ContentType: contentType,
		Size:        counted.n,
		Key:         key,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// mailAttachment streams the stored attachment into the outgoing message.
func (s *contactService) mailAttachment(att *domain.Attachment) *email.Attachment {
	key := att.Key
	return &email.Attachment{
		Filename:    att.Filename,
		ContentType: att.ContentType,
		Size:        att.Size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			rc, _, err := s.store.Get(ctx, key)
			return rc, err
		},
	}
}

// discard deletes the stored attachment. Failures are logged only.
func (s *contactService) discard(ctx context.Context, sub *domain.ContactSubmission) {
	if !sub.HasAttachment() {
		return
	}
	// The request may already be canceled once the reply is written.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Delete(ctx, sub.Attachment.Key); err != nil {
		s.logger.Warn("failed to delete attachment", "key", sub.Attachment.Key, "error", err)
	}
}
