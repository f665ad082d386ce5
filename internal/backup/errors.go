package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackupFound indicates that no snapshot is stored under the configured key.
	ErrNoBackupFound = errors.New("backup: no backup found")
	// ErrCorruptBackup indicates that the stored snapshot cannot be decoded.
	ErrCorruptBackup = errors.New("backup: corrupt backup")
	// ErrInvalidFormat indicates that an import payload is not an array of note objects.
	ErrInvalidFormat = errors.New("backup: invalid import format")
	// ErrSerializationFailed indicates that notes could not be encoded.
	ErrSerializationFailed = errors.New("backup: serialization failed")
	// ErrStorageFailed indicates that the key-value store rejected a read or write.
	ErrStorageFailed = errors.New("backup: storage failed")
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
