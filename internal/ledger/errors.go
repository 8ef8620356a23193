package ledger

import (
	"errors"
	"fmt"
)

// Common ledger errors. Every typed error below matches one of these with
// errors.Is, so callers can branch on the class without caring about details.
var (
	// ErrValidation is returned when input is missing or invalid. Nothing
	// has been written when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced client, invoice, quote,
	// service or schedule does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a document cannot move to the
	// requested status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError represents a rejected field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NotFoundError reports an unknown id.
type NotFoundError struct {
	// Kind is the entity type: client, invoice, quote, service, schedule.
	Kind string

	// ID is the id that failed to resolve.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found with id %q", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransitionError reports a refused status change.
type TransitionError struct {
	Kind string
	ID   string
	From string
	To   string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Kind, e.ID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is an unknown-reference failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
