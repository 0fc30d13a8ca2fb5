package refmanager

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/citepipe/citepipe/internal/citation"
)

// APIError is a non-2xx response from the reference manager.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reference manager: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes onto the shared sentinels so the
// error classifier sees them.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return citation.ErrItemNotFound
	case http.StatusTooManyRequests:
		return citation.ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return citation.ErrInvalidIdentifier
	}
	return nil
}

// Retryable reports whether the call may succeed on a later attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a missing-item response.
func IsNotFound(err error) bool {
	return errors.Is(err, citation.ErrItemNotFound)
}

// IsRateLimited reports whether err is a rate-limit response.
func IsRateLimited(err error) bool {
	return errors.Is(err, citation.ErrRateLimited)
}
