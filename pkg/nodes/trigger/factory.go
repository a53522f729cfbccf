package trigger

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
)

// TriggerNodeFactory creates TriggerNode instances.
type TriggerNodeFactory struct{}

func (f *TriggerNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewTriggerNode(node.ID), nil
}

func (f *TriggerNodeFactory) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (f *TriggerNodeFactory) Name() string {
	return "Trigger"
}

func (f *TriggerNodeFactory) Description() string {
	return "Starts a task and exposes the payload of the event that created the act"
}

func (f *TriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": []string{"manual", "webhook", "schedule"},
			},
		},
	}
}

func NewTriggerNodeFactory() protocol.ExecutorFactory {
	return &TriggerNodeFactory{}
}
