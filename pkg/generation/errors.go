package generation

import (
	"errors"
	"fmt"

	"github.com/dukex/actflow/pkg/models"
)

var (
	// ErrInvalidTransition indicates a transition the current status does not allow.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyTerminal indicates the generation already reached a final status.
	ErrAlreadyTerminal = errors.New("generation already terminal")

	// ErrRetryLimitExceeded indicates a retry beyond the configured ceiling.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	GenerationID string
	From         models.ExecutionStatus
	To           models.ExecutionStatus
	Err          error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("generation %s: %s -> %s: %v", e.GenerationID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func newTransitionError(id string, from, to models.ExecutionStatus, err error) *TransitionError {
	return &TransitionError{GenerationID: id, From: from, To: to, Err: err}
}

// IsInvalidTransition checks if an error is a rejected transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
