// Package storage holds contact form attachments between upload and
// delivery.
//
// Two implementations satisfy Storage:
//   - LocalStorage: a directory on the local filesystem
//   - R2Storage: a Cloudflare R2 (S3-compatible) bucket
//
// An attachment is written when a submission is accepted, read when the
// message is sent, and deleted once delivery succeeds. Attachments of
// failed deliveries stay in place until the retention sweep removes them.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the operations the contact flow needs from upload storage.
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at key. It fails with ErrKeyExists if the key is
	// taken (unless opts.Overwrite) and ErrTooLarge if data exceeds
	// opts.MaxSize.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the content at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is recorded with the object where the backend supports it.
	ContentType string

	// Size is the content length if known, 0 otherwise.
	Size int64

	// MaxSize rejects content larger than this many bytes. 0 means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory for uploads, e.g. "./uploads".
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the AWS SDK. R2 accepts "auto" (the default).
	Region string

	// Endpoint overrides https://{account_id}.r2.cloudflarestorage.com.
	Endpoint string
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// AttachmentPrefix is the key prefix of every contact attachment.
const AttachmentPrefix = "contact/"

// maxNameLength bounds the filename part of a key.
const maxNameLength = 100

// AttachmentKey generates a unique storage key for an uploaded attachment.
// Format: contact/{unix-ms}-{uuid}-{sanitized filename}
//
// Example: "contact/1767225600000-987fcdeb-51a2-43f1-b9c4-12345678abcd-cv.pdf"
func AttachmentKey(filename string, now time.Time) string {
	return fmt.Sprintf("%s%d-%s-%s", AttachmentPrefix, now.UnixMilli(), uuid.New(), SanitizeFilename(filename))
}

// SanitizeFilename reduces a client-supplied filename to a safe base name
// made of letters, digits, '.', '-' and '_'.
func SanitizeFilename(filename string) string {
	// Browsers on Windows may send full paths.
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	var b strings.Builder
	for _, r := range filename {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	name := strings.TrimLeft(b.String(), ".")
	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxNameLength-len(ext)] + ext
	}
	if name == "" || name == "_" {
		return "attachment"
	}
	return name
}
