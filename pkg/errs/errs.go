// Package errs defines the error taxonomy shared by the authorization engine
// and its HTTP surface: validation, not-found, unauthorized and conflict
// errors, each carrying enough context for the handler layer to map it to a
// status code without string matching.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed request. Always recoverable by the
// caller correcting input. Details holds per-variant or per-field messages so
// callers can report closest-match diagnostics.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Details)
}

// NewValidation creates a ValidationError with optional detail messages.
func NewValidation(message string, details ...string) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}

// NotFoundError reports a lookup by a key that does not exist. Surfaced
// distinctly from authorization denial.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// NewNotFound creates a NotFoundError for an entity kind and lookup key.
func NewNotFound(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// UnauthorizedError reports a denied action. Never downgraded to not-found.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// NewUnauthorized creates an UnauthorizedError with a message.
func NewUnauthorized(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

// ConflictError reports a state-machine violation, such as patching an
// invitation already in a terminal state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflict creates a ConflictError with a message.
func NewConflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized reports whether err is (or wraps) an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
