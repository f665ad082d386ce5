package notes

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable indicates the database connection is missing or cannot serve reads.
	ErrStoreUnavailable = errors.New("notes: store unavailable")
	// ErrNotFound indicates that no note exists for the requested id.
	ErrNotFound = errors.New("notes: note not found")
	// ErrWriteFailed indicates that the database rejected an insert, update or delete.
	ErrWriteFailed = errors.New("notes: write failed")
	// ErrInvalidNoteID indicates that a note identifier is not positive.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
)

// ServiceError carries a dotted operation.reason code alongside the wrapped errors.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, kind error, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	var wrapped error
	switch {
	case kind != nil && cause != nil:
		wrapped = fmt.Errorf("%w: %w", kind, cause)
	case kind != nil:
		wrapped = kind
	default:
		wrapped = cause
	}
	return &ServiceError{code: code, err: wrapped}
}
