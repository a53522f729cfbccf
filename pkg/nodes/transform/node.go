// Package transform provides the Go-template transform node executor.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
	"github.com/dukex/actflow/pkg/template"
)

// TransformNode renders an expression against its input.
type TransformNode struct {
	id         string
	expression string
}

// NewTransformNode creates a new data transformation node.
func NewTransformNode(id string, config map[string]any) (*TransformNode, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	return &TransformNode{
		id:         id,
		expression: expression,
	}, nil
}

func (n *TransformNode) ID() string {
	return n.id
}

// Execute renders the expression. The result, decoded when it is JSON, a
// number or a boolean, is emitted on the default output port.
func (n *TransformNode) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	result, err := template.RenderWithInput(n.expression, input)
	if err != nil {
		return nil, protocol.NewExecutorError(
			string(models.NodeTypeTransform),
			"transform_failed",
			fmt.Sprintf("transformation failed: %v", err),
			map[string]any{"node_id": n.id},
		)
	}

	return map[string]any{models.DefaultPort: result}, nil
}
