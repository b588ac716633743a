package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup by id or key matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write would break a uniqueness rule.
	ErrDuplicate = errors.New("already exists")
	// ErrInUse is returned when a delete is blocked by dependent records.
	ErrInUse = errors.New("in use")
)

// ValidationError reports a missing or inconsistent field on a write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError carries a user-facing message for ErrDuplicate and ErrInUse.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Unwrap() error { return e.Err }

func duplicate(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...), Err: ErrDuplicate}
}

func inUse(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...), Err: ErrInUse}
}

// notFound translates gorm.ErrRecordNotFound so callers never see gorm errors.
func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, id, err)
}

// uniqueViolation maps a translated unique-key error to msg, for races that
// slip past the explicit existence checks.
func uniqueViolation(err error, msg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicate("%s", msg)
	}
	return err
}
