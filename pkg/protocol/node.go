// Package protocol defines the contracts between the engine and pluggable node executors.
package protocol

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
)

// NodeExecutor performs the work of one node. The context is cancelled when
// the owning act is cancelled; executors that can be interrupted should
// observe it.
type NodeExecutor interface {
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// ExecutorFactory creates executors for one node type and provides metadata about it.
type ExecutorFactory interface {
	// Create builds an executor from the node's content
	Create(ctx context.Context, node *models.Node) (NodeExecutor, error)

	// Type returns the node type tag this factory handles
	Type() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for the node content
	Schema() map[string]any
}

// ExecutorFunc adapts a function to NodeExecutor.
type ExecutorFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}
