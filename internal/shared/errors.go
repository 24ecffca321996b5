package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrSessionExpired     = fmt.Errorf("session expired, please log in again")
	ErrProfileUnavailable = fmt.Errorf("signed in, but the profile could not be loaded")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidScore    = fmt.Errorf("invalid score")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// AuthError reports invalid credentials or an expired/invalid token.
//
// Receiving one from an authenticated call means the session has been torn down.
type AuthError struct {
	Detail string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError is raised client-side before a request is sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", e.Err, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NetworkError wraps transport-level failures (backend unreachable, circuit open).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrServiceUnavailable, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error { return []error{ErrServiceUnavailable, e.Err} }

// APIError is a non-2xx response that is not an authorization failure.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: status %d", ErrAPIRequest, e.Status)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrAPIRequest, e.Status, e.Detail)
}

func (e *APIError) Unwrap() error {
	if e.Status == 404 {
		return ErrNotFound
	}
	return ErrAPIRequest
}

// NewValidationError builds a [ValidationError] wrapping [ErrInvalidInput].
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: ErrInvalidInput}
}

// IsAuthError reports whether err is (or wraps) an [AuthError].
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRetryable reports whether err is a transient failure the user may retry.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// UserMessage renders err as a short message suitable for a status line or banner.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionExpired):
		return ErrSessionExpired.Error()
	case IsAuthError(err):
		var authErr *AuthError
		errors.As(err, &authErr)
		if authErr.Detail != "" {
			return authErr.Detail
		}
		return authErr.Err.Error()
	case errors.Is(err, ErrNotAuthenticated):
		return "please log in first"
	case IsRetryable(err):
		return "request failed, the server may be unreachable; try again"
	default:
		return err.Error()
	}
}
