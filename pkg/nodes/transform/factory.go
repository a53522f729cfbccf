package transform

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/protocol"
)

// TransformNodeFactory creates TransformNode instances.
type TransformNodeFactory struct{}

// Create creates a new TransformNode instance.
func (f *TransformNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewTransformNode(node.ID, node.Content)
}

func (f *TransformNodeFactory) Type() models.NodeType {
	return models.NodeTypeTransform
}

func (f *TransformNodeFactory) Name() string {
	return "Transform"
}

func (f *TransformNodeFactory) Description() string {
	return "Transforms data using Go templates with access to the node inputs and environment"
}

// Schema returns the JSON schema for Transform node content.
func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Go template expression. Inputs are available under .input, ACTFLOW_VAR_* environment variables under .env without the prefix.",
				"examples": []string{
					`{"user_id": "{{.input.payload.user_id}}", "status": "active"}`,
					`{{.input.response.name | upper}}`,
					`Processing {{len .input.items}} items`,
				},
			},
		},
		"required": []string{"expression"},
	}
}

// NewTransformNodeFactory creates a new factory instance.
func NewTransformNodeFactory() protocol.ExecutorFactory {
	return &TransformNodeFactory{}
}
