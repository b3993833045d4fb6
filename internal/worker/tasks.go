package worker

import (
	"context"
	"time"

	"github.com/DukeRupert/folio/internal/email"
)

// =============================================================================
// Transport Re-verification
// =============================================================================

// TransportSelector is the part of email.Selector the re-verify task drives.
type TransportSelector interface {
	State() email.State
	Run(ctx context.Context) error
	Budget() time.Duration
}

// TransportReverifyTask re-runs transport selection after every candidate
// failed, so a recovered mail server is picked up without a restart.
type TransportReverifyTask struct {
	selector TransportSelector
}

// NewTransportReverifyTask creates a TransportReverifyTask.
func NewTransportReverifyTask(selector TransportSelector) *TransportReverifyTask {
	return &TransportReverifyTask{selector: selector}
}

// Name implements Task.
func (t *TransportReverifyTask) Name() string { return "transport_reverify" }

// Timeout implements TimeoutTask. A run may verify both the primary and the
// fallback, so it gets the selector's whole budget.
func (t *TransportReverifyTask) Timeout() time.Duration {
	return t.selector.Budget() + time.Second
}

// Run implements Task. It does nothing while a transport is ready or a
// selection is already in progress.
func (t *TransportReverifyTask) Run(ctx context.Context) error {
	if t.selector.State() != email.StateFailed {
		return nil
	}
	return t.selector.Run(ctx)
}

// =============================================================================
// Attachment Cleanup
// =============================================================================

// AttachmentPurger removes attachments kept after failed deliveries.
type AttachmentPurger interface {
	PurgeStaleAttachments(ctx context.Context, maxAge time.Duration) (int, error)
}

// AttachmentCleanupTask deletes attachments older than a retention period.
type AttachmentCleanupTask struct {
	purger    AttachmentPurger
	retention time.Duration
}

// NewAttachmentCleanupTask creates an AttachmentCleanupTask.
func NewAttachmentCleanupTask(purger AttachmentPurger, retention time.Duration) *AttachmentCleanupTask {
	return &AttachmentCleanupTask{purger: purger, retention: retention}
}

// Name implements Task.
func (t *AttachmentCleanupTask) Name() string { return "attachment_cleanup" }

// Run implements Task.
func (t *AttachmentCleanupTask) Run(ctx context.Context) error {
	_, err := t.purger.PurgeStaleAttachments(ctx, t.retention)
	return err
}
