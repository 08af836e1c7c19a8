// Package apperrors provides structured publisher errors with exit code mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation       = errors.New("validation error")
	ErrProtocol         = errors.New("protocol error")
	ErrDeploymentFailed = errors.New("deployment failed")
	ErrInternal         = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel     error  // Wrapped sentinel for errors.Is() classification
	Message      string // Human-readable message
	Field        string // For validation errors (e.g., "username", "bundle")
	Op           string // Operation that failed (e.g., "upload", "status")
	StatusCode   int    // For protocol errors, the HTTP response code (0 for malformed bodies)
	URL          string // For protocol errors, the request URL
	DeploymentID string // For deployment failures
	State        string // For deployment failures, the observed deploymentState
	Cause        error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and, when set, the cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Sentinel, e.Cause}
	}
	return []error{e.Sentinel}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Protocol creates an error for an HTTP call that returned an unexpected status code.
func Protocol(op string, statusCode int, url string) error {
	return &Error{
		Sentinel:   ErrProtocol,
		Message:    fmt.Sprintf("unexpected response code %d for %s", statusCode, url),
		Op:         op,
		StatusCode: statusCode,
		URL:        url,
	}
}

// MalformedResponse creates a protocol error for a response body that could not be understood.
func MalformedResponse(op, url string, cause error) error {
	return &Error{
		Sentinel: ErrProtocol,
		Message:  fmt.Sprintf("malformed response for %s: %v", url, cause),
		Op:       op,
		URL:      url,
		Cause:    cause,
	}
}

// DeploymentFailed creates an error for a deployment that reached an unexpected state.
// details is appended on its own lines when non-empty.
func DeploymentFailed(deploymentID, state, expected, details string) error {
	msg := fmt.Sprintf("deployment %s has state %s, expected %s", deploymentID, state, expected)
	if details != "" {
		msg += ", errors:\n" + details
	}
	return &Error{
		Sentinel:     ErrDeploymentFailed,
		Message:      msg,
		DeploymentID: deploymentID,
		State:        state,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// IsProtocol reports whether err is, or wraps, a protocol error.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}
