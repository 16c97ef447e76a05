package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrThrottled is returned when the upstream cooldown blocks a request.
	ErrThrottled = errors.New("upstream cooldown active")
)

// ExcerptLimit is how many bytes of an upstream error body are kept.
const ExcerptLimit = 150

// UpstreamError is a non-success response from the upstream platform.
type UpstreamError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Excerpt    string
	Err        error
}

// Error implements the error interface.
// Format: "HTTP 503 Service Unavailable - <excerpt>".
func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("upstream %s error: %v", e.ErrorClass, e.Err)
	}
	return fmt.Sprintf("HTTP %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Excerpt)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// truncate cuts an upstream body down to ExcerptLimit bytes.
func truncate(body []byte) string {
	if len(body) > ExcerptLimit {
		body = body[:ExcerptLimit]
	}
	return string(body)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx other than 429 will not change on retry
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
