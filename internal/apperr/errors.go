// Package apperr defines the error taxonomy shared by the pipeline and
// the HTTP surface. Pipeline-fatal errors are recorded into document
// metadata and drive the document back to a review-pending status;
// client errors surface synchronously and never reach the queue.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionFailed means the document's text could not be obtained
	// by any method (size cap exceeded, or both extractors failed).
	ErrExtractionFailed = errors.New("document extraction failed")

	// ErrSchemaValidation means an AI response did not conform to the
	// expected structure. Not retried automatically.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrServiceUnavailable means an external AI/embedding/narrative call
	// failed at the transport level, or the service is not configured.
	ErrServiceUnavailable = errors.New("extraction service unavailable")

	// ErrNotFound means a referenced vendor/contract/invoice does not
	// exist or is soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness invariant was violated.
	ErrConflict = errors.New("conflict")
)

// ExtractionFailed wraps err as a pipeline-fatal extraction failure.
func ExtractionFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtractionFailed, fmt.Sprintf(format, args...))
}

// SchemaValidation wraps a schema mismatch description.
func SchemaValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaValidation, fmt.Sprintf(format, args...))
}

// ServiceUnavailable wraps a transport or availability failure.
func ServiceUnavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrServiceUnavailable, fmt.Sprintf(format, args...))
}

// NotFound reports a missing entity by kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Conflict reports a violated uniqueness invariant.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// IsPipelineFatal reports whether err should drive the owning document
// to its review-pending status instead of crashing the worker.
func IsPipelineFatal(err error) bool {
	return errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, ErrSchemaValidation) ||
		errors.Is(err, ErrServiceUnavailable)
}

// IsClientError reports whether err belongs to the caller, not the pipeline.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}
