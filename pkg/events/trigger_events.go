package events

import "github.com/dukex/actflow/pkg/models"

const (
	TriggerCreatedEvent EventType = "trigger.created"
	TriggerDeletedEvent EventType = "trigger.deleted"
)

// TriggerChanged is published when a trigger is saved or deleted, so
// schedulers can reload their entries.
type TriggerChanged struct {
	BaseEvent

	TriggerID string             `json:"trigger_id"`
	Kind      models.TriggerKind `json:"kind"`
	Cron      string             `json:"cron,omitempty"`
	Enabled   bool               `json:"enabled"`
}

func (e TriggerChanged) GetType() EventType {
	return e.Type
}

func NewTriggerChanged(eventType EventType, trigger *models.Trigger) TriggerChanged {
	return TriggerChanged{
		BaseEvent: NewBaseEvent(eventType, trigger.WorkspaceID, ""),
		TriggerID: trigger.ID,
		Kind:      trigger.Kind,
		Cron:      trigger.Cron,
		Enabled:   trigger.Enabled,
	}
}
