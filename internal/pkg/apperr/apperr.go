package apperr

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engines. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("concurrency conflict")
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("storage failure")
)

func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return wrap(ErrInvalidTransition, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return wrap(ErrConflict, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

// Storage wraps a driver error so it matches both ErrStorage and the cause.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsKnown reports whether err already carries one of the kinds above.
func IsKnown(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStorage)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
