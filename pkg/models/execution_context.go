package models

// ExecutionStatus is the lifecycle state shared by acts, tasks and generations.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is expected from s.
// Failed generations may still be re-queued through an explicit retry.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

func (s ExecutionStatus) String() string {
	return string(s)
}

// transitions lists the allowed status moves. failed -> queued is the explicit retry.
var transitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusQueued:  {ExecutionStatusRunning, ExecutionStatusCancelled},
	ExecutionStatusRunning: {ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled},
	ExecutionStatusFailed:  {ExecutionStatusQueued},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to ExecutionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}
