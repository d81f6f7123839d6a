package cfpb

import (
	"fmt"
	"time"
)

// RequestError is a non-retryable rejection by the provider (4xx other than
// rate limiting). It fails the whole fetch immediately.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("search API rejected request with status %d", e.StatusCode)
	}
	return fmt.Sprintf("search API rejected request with status %d: %s", e.StatusCode, e.Body)
}

// ServerError is a transient provider-side failure (5xx).
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("search API returned status %d", e.StatusCode)
}

// RateLimitError is a 429 response, with the provider's wait hint when given.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("search API rate limited, retry after %s", e.RetryAfter)
	}
	return "search API rate limited"
}
