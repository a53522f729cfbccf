// Package trigger provides the executor of trigger nodes, the roots of every task.
package trigger

import (
	"context"
	"maps"

	"github.com/dukex/actflow/pkg/models"
)

// TriggerNode emits the act payload. Top-level payload fields are also
// exposed as output ports of the same name.
type TriggerNode struct {
	id string
}

func NewTriggerNode(id string) *TriggerNode {
	return &TriggerNode{id: id}
}

// Execute passes the payload received on the payload port through.
func (n *TriggerNode) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	output := make(map[string]any)

	payload, _ := input[models.PayloadPort].(map[string]any)
	maps.Copy(output, payload)

	output[models.DefaultPort] = payload

	return output, nil
}
