package citation

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory classifies failures for cascade and retry decisions.
type ErrorCategory string

// Failure categories. Validation errors are rejected before any state
// change; permanent errors terminate processing; retryable errors cascade
// to the next applicable stage; integrity errors are reported, never
// auto-corrected.
const (
	CategoryValidation ErrorCategory = "validation"
	CategoryPermanent  ErrorCategory = "permanent"
	CategoryRetryable  ErrorCategory = "retryable"
	CategoryIntegrity  ErrorCategory = "integrity"
)

// Sentinel errors shared across components.
var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrItemNotFound signals the reference manager has no such item.
	ErrItemNotFound = errors.New("reference item not found")

	// ErrRateLimited signals the remote rejected the call for rate reasons.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidIdentifier signals a malformed or untranslatable identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNoContent signals that no cached content exists for the URL.
	ErrNoContent = errors.New("no cached content")

	// ErrDuplicateURL signals that the URL is already tracked in the
	// target section.
	ErrDuplicateURL = errors.New("url already tracked in section")
)

// ProcessingError wraps a stage failure with its category so the
// orchestrator can decide between cascade and termination.
type ProcessingError struct {
	Stage    string
	Category ErrorCategory
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Category, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// NewProcessingError builds a categorized stage failure.
func NewProcessingError(stage string, category ErrorCategory, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, Category: category, Err: err}
}

// ClassifyError maps an arbitrary error to a failure category. Timeouts,
// rate limits and transient network faults are retryable; not-found and
// validation failures are permanent.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr.Category
	}
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrInvalidIdentifier):
		return CategoryPermanent
	case errors.Is(err, ErrRateLimited):
		return CategoryRetryable
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryRetryable
	case errors.Is(err, context.Canceled):
		return CategoryRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryRetryable
	}
	return CategoryPermanent
}
