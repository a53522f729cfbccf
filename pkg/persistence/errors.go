// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all repositories use.
var (
	// ErrWorkspaceNotFound indicates a workspace was not found by the given identifier.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrActNotFound indicates an act was not found by the given identifier.
	ErrActNotFound = errors.New("act not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrGenerationNotFound indicates a generation was not found by the given identifier.
	ErrGenerationNotFound = errors.New("generation not found")

	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrAlreadyExists indicates a record with the same identifier already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStoreConflict indicates an optimistic write kept losing races until the retry budget ran out.
	ErrStoreConflict = errors.New("store conflict")

	// ErrSkipWrite is returned by update mutators that leave the record unchanged.
	ErrSkipWrite = errors.New("skip write")
)

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op     string // Operation being performed (e.g., "Get", "Create", "Update")
	Record string // Record kind ("act", "task", ...)
	ID     string // Record ID
	Err    error  // Underlying error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Record, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, record, id string, err error) *RecordError {
	return &RecordError{
		Op:     op,
		Record: record,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound) ||
		errors.Is(err, ErrActNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrGenerationNotFound) ||
		errors.Is(err, ErrTriggerNotFound)
}

// IsAlreadyExists checks if an error indicates a duplicate record.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsStoreConflict checks if an error indicates exhausted optimistic write retries.
func IsStoreConflict(err error) bool {
	return errors.Is(err, ErrStoreConflict)
}
