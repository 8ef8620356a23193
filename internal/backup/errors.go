package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when a backup payload cannot be accepted. No
	// store write has been attempted when it is returned.
	ErrFormat = errors.New("invalid backup payload")

	// ErrRestoreFailed is returned when a restore could not be completed.
	// The store has been rolled back to its pre-restore contents.
	ErrRestoreFailed = errors.New("backup restore failed")

	// ErrNoArchive is returned when the off-site archive holds no backups.
	ErrNoArchive = errors.New("no backup found in archive")
)

// FormatError describes why a payload was rejected.
type FormatError struct {
	// Reason is a short human-readable description, e.g. "missing schemaVersion".
	Reason string

	// Err is the underlying decode error, if any.
	Err error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backup: %s: %v", e.Reason, e.Err)
	}
	return "backup: " + e.Reason
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is matches ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatError(reason string, err error) *FormatError {
	return &FormatError{Reason: reason, Err: err}
}

// RestoreError reports the key whose write failed during a restore.
type RestoreError struct {
	Key string
	Err error

	// RollbackErr is set when the store could not be fully rolled back.
	RollbackErr error
}

// Error implements the error interface.
func (e *RestoreError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("backup: restore of %s failed: %v (rollback also failed: %v)", e.Key, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("backup: restore of %s failed: %v", e.Key, e.Err)
}

// Unwrap exposes the write error and any rollback error.
func (e *RestoreError) Unwrap() []error {
	if e.RollbackErr != nil {
		return []error{e.Err, e.RollbackErr}
	}
	return []error{e.Err}
}

// Is matches ErrRestoreFailed.
func (e *RestoreError) Is(target error) bool {
	return target == ErrRestoreFailed
}
