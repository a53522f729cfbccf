package web

import "github.com/dukex/actflow/pkg/models"

// CreateActRequest is the body of a manual act creation.
type CreateActRequest struct {
	NodeID    string         `json:"node_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Requester string         `json:"requester,omitempty"`
}

// CancelActRequest is the body of an act cancellation. Both fields are optional.
type CancelActRequest struct {
	Reason      string `json:"reason,omitempty"       validate:"max=500"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// TriggerRequest is the body used to create or replace a trigger.
type TriggerRequest struct {
	NodeID  string             `json:"node_id,omitempty"`
	Kind    models.TriggerKind `json:"kind"               validate:"required"`
	Cron    string             `json:"cron,omitempty"`
	Schema  map[string]any     `json:"schema,omitempty"`
	Payload map[string]any     `json:"payload,omitempty"`
	Enabled bool               `json:"enabled"`
}

// ActAccepted is returned when an act has been created and scheduled.
type ActAccepted struct {
	Act       *models.Act `json:"act"`
	StatusURL string      `json:"status_url"`
}

func (r TriggerRequest) toTrigger(workspaceID, createdBy string) *models.Trigger {
	return &models.Trigger{
		WorkspaceID: workspaceID,
		NodeID:      r.NodeID,
		Kind:        r.Kind,
		Cron:        r.Cron,
		Schema:      r.Schema,
		Payload:     r.Payload,
		Enabled:     r.Enabled,
		CreatedBy:   createdBy,
	}
}
