package notion

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api error (status %d): %s", e.Status, e.Message)
}

// Retryable reports whether the error is transient. Client errors
// (malformed request, unauthorized, not found) are terminal; rate limiting
// and everything in the 5xx range is worth another attempt.
func (e *APIError) Retryable() bool {
	if e.Status == 429 {
		return true
	}
	return e.Status < 400 || e.Status >= 500
}

// IsRetryable classifies an error for the retry policy: API client errors
// are terminal, timeouts and network faults are transient. A canceled
// context is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Anything else from the HTTP stack (connection reset, EOF mid-body)
	// is treated as transient.
	return true
}
