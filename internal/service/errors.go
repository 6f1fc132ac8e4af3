package service

import (
	"errors"
	"fmt"

	"todo-scheduler/internal/repository"
)

// ErrNotFound is returned when an id does not resolve to a todo.
var ErrNotFound = repository.ErrNotFound

// ValidationError reports malformed or missing input. Message is safe to
// return to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
