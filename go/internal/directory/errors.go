package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a room or participant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when a non-creator attempts a privileged operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidPassword is returned when joining a protected room with a wrong password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrConnectionDegraded marks a transport failure that polling covers. Never shown to users.
	ErrConnectionDegraded = errors.New("connection degraded")
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports an input rejected before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
