package models

import "time"

// StepEntry binds a node of a step to the generation that executes it.
type StepEntry struct {
	NodeID       string `json:"node_id"`
	GenerationID string `json:"generation_id"`
}

// Step is a set of generations runnable concurrently.
type Step struct {
	Index   int         `json:"index"`
	Entries []StepEntry `json:"entries"`
}

// Task is one executable connected subgraph of an act.
type Task struct {
	ID          string          `json:"id"`
	ActID       string          `json:"act_id"`
	WorkspaceID string          `json:"workspace_id"`
	Status      ExecutionStatus `json:"status"`

	// Snapshot of the subgraph taken when the act was planned.
	Nodes       []*Node        `json:"nodes"`
	Connections []*Connection  `json:"connections"`
	Steps       []Step         `json:"steps"`
	Payload     map[string]any `json:"payload,omitempty"`

	// DispatchedSteps counts the steps whose generations have all been created.
	DispatchedSteps int `json:"dispatched_steps"`

	FailedGenerationID string `json:"failed_generation_id,omitempty"`
	Error              string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NodeByID returns the node snapshot with the given id.
func (t *Task) NodeByID(id string) (*Node, bool) {
	for _, node := range t.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// GenerationIDs returns the generation ids of every step in order.
func (t *Task) GenerationIDs() []string {
	var ids []string

	for _, step := range t.Steps {
		for _, entry := range step.Entries {
			ids = append(ids, entry.GenerationID)
		}
	}

	return ids
}

// GenerationIDFor returns the generation planned for nodeID.
func (t *Task) GenerationIDFor(nodeID string) (string, bool) {
	for _, step := range t.Steps {
		for _, entry := range step.Entries {
			if entry.NodeID == nodeID {
				return entry.GenerationID, true
			}
		}
	}

	return "", false
}

// IncomingConnections returns the connections whose target is nodeID.
func (t *Task) IncomingConnections(nodeID string) []*Connection {
	var incoming []*Connection

	for _, conn := range t.Connections {
		if conn.TargetNodeID() == nodeID {
			incoming = append(incoming, conn)
		}
	}

	return incoming
}

// TaskResult is what the task runner reports back after a run.
type TaskResult struct {
	TaskID             string                    `json:"task_id"`
	Status             ExecutionStatus           `json:"status"`
	FailedGenerationID string                    `json:"failed_generation_id,omitempty"`
	Error              string                    `json:"error,omitempty"`
	Outputs            map[string]map[string]any `json:"outputs,omitempty"` // node id -> output
}
