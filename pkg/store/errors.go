package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrConflict indicates a write precondition did not hold.
	ErrConflict = errors.New("store conflict")

	// ErrInvalidKey indicates a key that cannot be stored.
	ErrInvalidKey = errors.New("invalid key")
)

// KeyError wraps store errors with the operation and key involved.
type KeyError struct {
	Op  string
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func (e *KeyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewKeyError creates a new key error.
func NewKeyError(op, key string, err error) *KeyError {
	return &KeyError{Op: op, Key: key, Err: err}
}

// IsNotFound checks if an error indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error indicates a failed write precondition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
