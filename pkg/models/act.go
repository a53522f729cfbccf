package models

import "time"

// Act is one logical run triggered by one external event.
type Act struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	TriggerID   string          `json:"trigger_id,omitempty"`
	Status      ExecutionStatus `json:"status"`
	TaskIDs     []string        `json:"task_ids"`
	Payload     map[string]any  `json:"payload,omitempty"`

	Requester string         `json:"requester,omitempty"`
	TeamID    string         `json:"team_id,omitempty"`
	PlanTier  string         `json:"plan_tier,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Set once the act fails: the first task and generation that caused it.
	FailedTaskID       string `json:"failed_task_id,omitempty"`
	FailedGenerationID string `json:"failed_generation_id,omitempty"`
	Error              string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActCreationRequest is what a trigger ingestor hands to the act coordinator.
type ActCreationRequest struct {
	WorkspaceID string         `json:"workspace_id"             validate:"required"`
	RequestID   string         `json:"request_id,omitempty"` // makes creation idempotent: one act per request id
	TriggerID   string         `json:"trigger_id,omitempty"`
	NodeID      string         `json:"node_id,omitempty"` // restrict the act to the component of this trigger node
	Payload     map[string]any `json:"payload,omitempty"`
	Requester   string         `json:"requester,omitempty"`
	TeamID      string         `json:"team_id,omitempty"`
	PlanTier    string         `json:"plan_tier,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ActCancellation is the durable marker written when an act is cancelled.
type ActCancellation struct {
	ActID       string    `json:"act_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ActStatusReport is the aggregate view returned to pollers.
type ActStatusReport struct {
	Act   *Act                    `json:"act"`
	Tasks []*TaskStatusReport     `json:"tasks"`
	Count map[ExecutionStatus]int `json:"task_count"`
}

// TaskStatusReport summarizes a task and its generations.
type TaskStatusReport struct {
	Task        *Task         `json:"task"`
	Generations []*Generation `json:"generations,omitempty"`
}
