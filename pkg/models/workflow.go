// Package models defines the core domain models for workspace graph execution.
package models

import "time"

// Workspace is a user-authored graph of nodes and connections.
type Workspace struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=1"`
	Nodes       []*Node        `json:"nodes"                 validate:"dive"`
	Connections []*Connection  `json:"connections"           validate:"dive"`
	Owner       string         `json:"owner,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NodeByID returns the node with the given id.
func (w *Workspace) NodeByID(id string) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// TriggerNodes returns every trigger node of the workspace in declaration order.
func (w *Workspace) TriggerNodes() []*Node {
	var triggers []*Node

	for _, node := range w.Nodes {
		if node.IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
