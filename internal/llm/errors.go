package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Body)
}

// TransientError marks a failure that may succeed if attempted again
// (network errors, 429, 5xx). Nothing in this package retries; the
// classification feeds logs and metrics.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError marks a failure that will not go away on its own
// (bad credentials, malformed request, missing endpoint).
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps err as fatal.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err was classified as transient.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err was classified as fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// classifyStatus wraps err according to the HTTP status that produced it.
func classifyStatus(statusCode int, err error) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTransient(err):
		return "transient"
	default:
		return "fatal"
	}
}
