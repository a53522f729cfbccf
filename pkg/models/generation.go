package models

import "time"

// GenerationError is the error payload attached to a failed generation.
type GenerationError struct {
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Generation is the execution record of one node invocation within one task.
type Generation struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id"`
	ActID       string          `json:"act_id"`
	WorkspaceID string          `json:"workspace_id"`
	NodeID      string          `json:"node_id"`
	NodeType    NodeType        `json:"node_type"`
	StepIndex   int             `json:"step_index"`
	Status      ExecutionStatus `json:"status"`

	// Input is set once, on the first start, and never rewritten.
	Input      map[string]any   `json:"input,omitempty"`
	Output     map[string]any   `json:"output,omitempty"`
	Error      *GenerationError `json:"error,omitempty"`
	RetryCount int              `json:"retry_count"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
