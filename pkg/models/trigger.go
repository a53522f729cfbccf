package models

import "time"

// TriggerKind describes what kind of external event creates acts.
type TriggerKind string

const (
	TriggerKindManual   TriggerKind = "manual"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindSchedule TriggerKind = "schedule"
)

// Trigger is a persisted configuration describing how acts are created for a workspace.
type Trigger struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"             validate:"required"`
	NodeID      string         `json:"node_id,omitempty"`
	Kind        TriggerKind    `json:"kind"                     validate:"required,oneof=manual webhook schedule"`
	Cron        string         `json:"cron,omitempty"           validate:"required_if=Kind schedule"`
	Schema      map[string]any `json:"schema,omitempty"` // JSON schema the payload must satisfy
	Payload     map[string]any `json:"payload,omitempty"` // default payload for scheduled runs
	Enabled     bool           `json:"enabled"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
