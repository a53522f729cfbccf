package trigger

import (
	"errors"
	"strings"
)

var (
	// ErrTriggerDisabled indicates an event for a disabled trigger.
	ErrTriggerDisabled = errors.New("trigger disabled")

	// ErrInvalidTrigger indicates a trigger configuration that cannot be saved.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrWorkspaceMismatch indicates a trigger addressed through another workspace.
	ErrWorkspaceMismatch = errors.New("trigger belongs to another workspace")
)

// PayloadError lists why a payload does not satisfy its trigger's schema.
type PayloadError struct {
	TriggerID string
	Problems  []string
}

func (e *PayloadError) Error() string {
	return "invalid payload for trigger " + e.TriggerID + ": " + strings.Join(e.Problems, "; ")
}

// IsPayloadError checks if an error is a rejected payload.
func IsPayloadError(err error) bool {
	var payloadErr *PayloadError

	return errors.As(err, &payloadErr)
}
