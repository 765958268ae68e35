// Package resilience provides error classification and retry with backoff
// for outbound API calls.
package resilience

import (
	"errors"
	"net/http"
)

// HTTPError wraps a request-level failure with its HTTP status code so retry
// policies can distinguish rate limiting from other failures.
type HTTPError struct {
	Err        error
	StatusCode int
}

func (e *HTTPError) Error() string {
	return e.Err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError wraps an error with an HTTP status code.
func NewHTTPError(err error, statusCode int) *HTTPError {
	return &HTTPError{Err: err, StatusCode: statusCode}
}

// IsRateLimit returns true if the error chain contains an HTTPError with
// status 429. Any other failure is treated as non-retryable by the
// isochrone client.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusTooManyRequests
}
