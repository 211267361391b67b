package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by record stores, the session gate and the mutation
// coordinator. Callers match with errors.Is.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidationFailed = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Validationf wraps ErrValidationFailed with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// RecordNotFound wraps ErrNotFound for the given record id.
func RecordNotFound(id string) error {
	return fmt.Errorf("record %q: %w", id, ErrNotFound)
}

// Unavailable wraps a backend failure as ErrStoreUnavailable, keeping the cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
