package reddit

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// RateLimitError is returned when the provider answers 429. Retryable.
type RateLimitError struct {
	RetryAfter string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("reddit rate limited (retry after %s)", e.RetryAfter)
	}
	return "reddit rate limited"
}

// ServerError is returned for 5xx responses. Retryable.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("reddit server error: HTTP %d", e.Status)
}

// RequestError is returned for other non-2xx responses (bad credentials,
// malformed request, banned subreddit). Not retryable.
type RequestError struct {
	Status int
	URL    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("reddit request failed: HTTP %d for %s", e.Status, e.URL)
}

// IsTransient reports whether an error is worth retrying: rate limits,
// server errors, timeouts, and connectivity failures. Context cancellation
// and 4xx request errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rate *RateLimitError
	var server *ServerError
	if errors.As(err, &rate) || errors.As(err, &server) {
		return true
	}

	// *url.Error and friends cover timeouts and connection failures.
	var netErr net.Error
	return errors.As(err, &netErr)
}
