package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is matched by NotFoundError via errors.Is.
var ErrNotFound = errors.New("record not found")

// DatabaseError wraps database-related errors from GORM
type DatabaseError struct {
	Inner error
}

func (e *DatabaseError) Error() string {
	return "database operation failed: " + e.Inner.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Inner
}

// NotFoundError represents when a record is not found
type NotFoundError struct {
	Search string
}

func (e *NotFoundError) Error() string {
	return "record not found for search: " + e.Search
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// wrapErrorWithDetails creates a more specific error message
func wrapErrorWithDetails(err error, operation, details string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Search: fmt.Sprintf("%s (%s)", operation, details)}
	}

	return &DatabaseError{Inner: fmt.Errorf("%s (%s): %w", operation, details, err)}
}
