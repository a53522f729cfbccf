// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/actflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:      uuid.New().String(),
		Type:    models.NodeTypeMemo,
		Name:    "Test Node",
		Content: map[string]any{"text": "test"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithContent sets the node content.
func WithContent(content map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Content = content
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// TriggerNode creates a trigger node with the given id.
func TriggerNode(id string) *models.Node {
	return CreateTestNode(WithID(id), WithType(models.NodeTypeTrigger), WithName("Trigger "+id),
		WithContent(map[string]any{"kind": "manual"}))
}

// Connect creates a connection from the default output port of source to
// the default input port of target.
func Connect(source, target string) *models.Connection {
	return &models.Connection{
		ID:         source + "->" + target,
		SourcePort: models.MakePortID(source, models.DefaultPort),
		TargetPort: models.MakePortID(target, "input"),
	}
}

// CreateTestWorkspace creates a workspace holding nodes and connections.
func CreateTestWorkspace(id string, nodes []*models.Node, connections []*models.Connection) *models.Workspace {
	return &models.Workspace{
		ID:          id,
		Name:        "Test Workspace",
		Nodes:       nodes,
		Connections: connections,
		Owner:       "test-user",
	}
}

// CreateChainWorkspace creates the workspace [Trigger A] -> [B] -> [C] plus a
// disconnected memo D, where B and C have type nodeType.
func CreateChainWorkspace(id string, nodeType models.NodeType) *models.Workspace {
	return CreateTestWorkspace(id,
		[]*models.Node{
			TriggerNode("A"),
			CreateTestNode(WithID("B"), WithType(nodeType)),
			CreateTestNode(WithID("C"), WithType(nodeType)),
			CreateTestNode(WithID("D"), WithType(models.NodeTypeMemo)),
		},
		[]*models.Connection{Connect("A", "B"), Connect("B", "C")},
	)
}
