package feed

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthFailed is returned when the service rejects the API key. It is not
	// recoverable by trying another endpoint.
	ErrAuthFailed = errors.New("feed: authentication failed")

	// ErrRateLimited is returned when the service answers 429. The client does
	// not retry; the caller decides how long to back off.
	ErrRateLimited = errors.New("feed: rate limited")
)

// StatusError describes a non-2xx response from one endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed: %s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// Unwrap maps the status code onto the sentinel errors so callers can use
// errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// IsAuthFailed reports whether err is an authentication failure.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsRateLimited reports whether err is a rate limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
