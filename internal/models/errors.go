package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested document or index does not exist
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is a transient backend failure, distinct from ErrNotFound
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTideNotFound is ErrNotFound for a tide document
	ErrTideNotFound = fmt.Errorf("tide %w", ErrNotFound)

	// ErrNotFoundAnywhere means every source was tried without a hit.
	// It matches ErrNotFound and never ErrStoreUnavailable.
	ErrNotFoundAnywhere = fmt.Errorf("tide %w in any source", ErrNotFound)

	// ErrActorUnavailable means the owner's serialization point is down or the
	// request timed out waiting for it
	ErrActorUnavailable = errors.New("actor unavailable")

	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("validation error")
)

// ValidationError reports malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unavailable wraps cause so that it matches ErrStoreUnavailable
func Unavailable(backend string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, backend, cause)
}
