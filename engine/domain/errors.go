package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for precondition and validation failures.
var (
	ErrMissingHeaders  = errors.New("auth headers missing")
	ErrMissingKeyword  = errors.New("search keyword missing")
	ErrMissingAIKey    = errors.New("AI credential missing")
	ErrAIAuthRejected  = errors.New("AI credential rejected")
	ErrAIQuotaExceeded = errors.New("AI quota exceeded")
	ErrInvalidQuery    = errors.New("invalid query")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
