// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound = errors.New("not found")
	ErrNoRun    = errors.New("no verification run recorded")

	// Workflow errors.
	ErrInFlight = errors.New("operation already in flight for this key")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// ValidationError reports malformed or missing input. It is raised before any
// network call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a named input.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RequestError reports a failed request/response call: either a non-2xx
// response (StatusCode set, Detail carries the service's message) or a
// network failure (wrapped in Err).
type RequestError struct {
	Err        error
	Detail     string
	StatusCode int
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return "request failed"
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a request error from a response status and detail.
func NewRequestError(statusCode int, detail string) error {
	return &RequestError{StatusCode: statusCode, Detail: detail}
}

// WrapRequestError creates a request error from a transport-level failure of
// a request/response call.
func WrapRequestError(err error) error {
	return &RequestError{Err: err}
}

// TransportError reports a streaming connection drop or an undecodable frame.
// It surfaces only as a channel's error state and is never auto-retried.
type TransportError struct {
	Err error
	Msg string
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream transport: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("stream transport: %s", e.Msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error for a streaming failure.
func NewTransportError(msg string, err error) error {
	return &TransportError{Msg: msg, Err: err}
}

// IsInFlight reports whether an error means the key already has a call in
// flight; calling surfaces treat it as "control disabled", not a failure.
func IsInFlight(err error) bool {
	return errors.Is(err, ErrInFlight)
}

// IsRetryable determines if an error should trigger a retry. Only idempotent
// request/response calls are ever retried; stream failures and validation
// failures never are.
func IsRetryable(err error) bool {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return false
	}

	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		// Network failure or server-side trouble; client errors are final.
		if requestErr.StatusCode == 0 {
			return true
		}
		return requestErr.StatusCode >= 500 || requestErr.StatusCode == 429
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
