package domain

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable means the alert log is missing or empty; the tick is skipped.
var ErrSourceUnavailable = errors.New("alert source unavailable")

// ParseError reports a single log line that could not be turned into an AlertRecord.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EnqueueError reports a pending marker that could not be written.
type EnqueueError struct {
	AlertID string
	Err     error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue alert %s: %v", e.AlertID, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }

// EnrichmentError covers transport failures, bad statuses and unusable model output.
type EnrichmentError struct {
	AlertID string
	Err     error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich alert %s: %v", e.AlertID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// StorageError reports a failed summary read or write.
type StorageError struct {
	AlertID string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.AlertID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s alert %s: %v", e.Op, e.AlertID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CheckpointWriteError is non-fatal: the next tick recomputes the same batch.
type CheckpointWriteError struct {
	Value int64
	Err   error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("write checkpoint %d: %v", e.Value, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error { return e.Err }
