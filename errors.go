package nsapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAgentNotSet is returned when a governed request is attempted before a
// User-Agent has been set. It is a configuration error and is never
// retried.
var ErrAgentNotSet = errors.New("nsapi: user agent not set")

// Error classes for HTTP status failures, usable with errors.Is.
// The specific sentinels wrap their class, so a NotFound error matches
// both ErrNotFound and ErrClientError.
var (
	ErrClientError     = errors.New("nsapi: client error")
	ErrServerError     = errors.New("nsapi: server error")
	ErrBadRequest      = fmt.Errorf("bad request: %w", ErrClientError)
	ErrForbidden       = fmt.Errorf("forbidden: %w", ErrClientError)
	ErrNotFound        = fmt.Errorf("not found: %w", ErrClientError)
	ErrConflict        = fmt.Errorf("conflict: %w", ErrClientError)
	ErrTeapot          = fmt.Errorf("teapot: %w", ErrClientError)
	ErrTooManyRequests = fmt.Errorf("too many requests: %w", ErrClientError)
)

// StatusError reports a terminal HTTP error status from the API.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nsapi: %s returned %s", e.URL, e.Status)
}

// Unwrap narrows the error to the most specific sentinel for its status
// code, so callers can test with errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTeapot:
		return ErrTeapot
	case http.StatusTooManyRequests:
		return ErrTooManyRequests
	}
	switch {
	case e.Code >= 500:
		return ErrServerError
	case e.Code >= 400:
		return ErrClientError
	}
	return nil
}

// CheckStatus converts a 4xx or 5xx response into a *StatusError.
// It returns nil for any other status. The governor itself never raises
// these; terminal failure responses are returned to the caller, and
// CheckStatus is how callers opt into treating them as errors.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	u := ""
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL.Redacted()
	}
	return &StatusError{
		Code:   resp.StatusCode,
		Status: resp.Status,
		URL:    u,
	}
}
