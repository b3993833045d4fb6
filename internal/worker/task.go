package worker

import (
	"context"
	"errors"
	"time"
)

// Task is a unit of periodic background work.
type Task interface {
	// Name identifies the task in logs and metrics.
	Name() string

	// Run performs one pass. Return NewPermanentError to stop the task
	// from being scheduled again.
	Run(ctx context.Context) error
}

// TimeoutTask is a Task that needs a different run deadline than
// Config.TaskTimeout.
type TimeoutTask interface {
	Task
	Timeout() time.Duration
}

// PermanentError wraps an error to indicate the task should not run again.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PermanentError.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new PermanentError that wraps the given error.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is a PermanentError.
// Returns true if the error (or any error it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
