package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Attachment
// =============================================================================

// Attachment describes a file uploaded alongside a contact submission.
// The bytes live in upload storage under Key until delivery succeeds.
type Attachment struct {
	Filename    string // Original filename from the client
	ContentType string // Declared MIME type
	Size        int64  // Size in bytes
	Key         string // Storage key of the temporary copy
}

// =============================================================================
// Attachment Policy
// =============================================================================

const (
	// DefaultMaxAttachmentSize is the upload limit when none is configured (5 MiB).
	DefaultMaxAttachmentSize = 5 * 1024 * 1024
)

// DefaultAllowedMIMETypes is the upload allow-list when none is configured.
var DefaultAllowedMIMETypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"application/pdf",
}

// AttachmentPolicy bounds what may be uploaded with a submission.
type AttachmentPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// DefaultAttachmentPolicy returns the policy used when nothing is configured.
func DefaultAttachmentPolicy() AttachmentPolicy {
	return AttachmentPolicy{
		MaxBytes:     DefaultMaxAttachmentSize,
		AllowedTypes: append([]string(nil), DefaultAllowedMIMETypes...),
	}
}

// Allows reports whether the declared content type is on the allow-list.
// Parameters such as "; charset=..." are ignored.
func (p AttachmentPolicy) Allows(contentType string) bool {
	base := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if base == "" {
		return false
	}
	for _, allowed := range p.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(allowed), base) {
			return true
		}
	}
	return false
}

// CheckType returns an EINVALID error if the content type is not allowed.
func (p AttachmentPolicy) CheckType(contentType string) error {
	if p.Allows(contentType) {
		return nil
	}
	return Invalid("attachment.validate", "Invalid attachment type. Allowed: "+strings.Join(p.AllowedTypes, ", "))
}

// CheckSize returns an ETOOLARGE error if size exceeds the limit.
func (p AttachmentPolicy) CheckSize(size int64) error {
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return p.TooLargeError()
	}
	return nil
}

// TooLargeError is the error reported for any oversized upload.
func (p AttachmentPolicy) TooLargeError() *Error {
	mb := (p.MaxBytes + 512*1024) / (1024 * 1024)
	return TooLarge("attachment.validate", fmt.Sprintf("Attachment too large. Max size is %d MB.", mb))
}

// Check applies both the type and the size rule. Type is checked first so
// a disallowed file never reaches storage regardless of its size.
func (p AttachmentPolicy) Check(a Attachment) error {
	if err := p.CheckType(a.ContentType); err != nil {
		return err
	}
	return p.CheckSize(a.Size)
}
