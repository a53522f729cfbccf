package act

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dukex/actflow/pkg/graph"
	"github.com/dukex/actflow/pkg/models"
	"github.com/google/uuid"
)

// requestNamespace derives act ids from request ids.
var requestNamespace = uuid.MustParse("5b0f3c5e-8f3e-4f43-9a0c-6c1f2d7d9a41")

// ActIDForRequest returns the act id planned for a request id. Empty
// request ids have no stable act id.
func ActIDForRequest(requestID string) string {
	if requestID == "" {
		return ""
	}

	return uuid.NewSHA1(requestNamespace, []byte(requestID)).String()
}

// Plan resolves the workspace graph and builds the act with its queued
// tasks without persisting anything. When request.NodeID is set only the
// component of that trigger node is planned. When request.RequestID is set
// the act and task ids are derived from it, so planning the same request
// twice yields the same records.
func Plan(workspace *models.Workspace, request models.ActCreationRequest) (*models.Act, []*models.Task, error) {
	plans, err := graph.Resolve(workspace.Nodes, workspace.Connections)
	if err != nil {
		return nil, nil, err
	}

	if request.NodeID != "" {
		node, ok := workspace.NodeByID(request.NodeID)
		if !ok || !node.IsTrigger() {
			return nil, nil, fmt.Errorf("%w: %s", ErrTriggerNodeNotFound, request.NodeID)
		}

		plans = slices.DeleteFunc(plans, func(p *graph.TaskPlan) bool {
			return !p.Contains(request.NodeID)
		})
	}

	if len(plans) == 0 {
		return nil, nil, ErrNoExecutableTasks
	}

	now := time.Now().UTC()

	actID := uuid.New()
	if request.RequestID != "" {
		actID = uuid.MustParse(ActIDForRequest(request.RequestID))
	}

	act := &models.Act{
		ID:          actID.String(),
		WorkspaceID: workspace.ID,
		TriggerID:   request.TriggerID,
		Status:      models.ExecutionStatusQueued,
		Payload:     request.Payload,
		Requester:   request.Requester,
		TeamID:      request.TeamID,
		PlanTier:    request.PlanTier,
		Metadata:    request.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tasks := make([]*models.Task, 0, len(plans))

	for i, plan := range plans {
		taskID := uuid.New()
		if request.RequestID != "" {
			taskID = uuid.NewSHA1(actID, []byte(strconv.Itoa(i)))
		}

		task := newTask(taskID, act, workspace, plan, now)
		act.TaskIDs = append(act.TaskIDs, task.ID)
		tasks = append(tasks, task)
	}

	return act, tasks, nil
}

// newTask snapshots the nodes of plan and assigns each one a generation id
// derived from the task id and node id.
func newTask(taskID uuid.UUID, act *models.Act, workspace *models.Workspace, plan *graph.TaskPlan, now time.Time) *models.Task {
	task := &models.Task{
		ID:          taskID.String(),
		ActID:       act.ID,
		WorkspaceID: workspace.ID,
		Status:      models.ExecutionStatusQueued,
		Connections: plan.Connections,
		Payload:     act.Payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, nodeID := range plan.NodeIDs {
		node, _ := workspace.NodeByID(nodeID)
		snapshot := *node
		task.Nodes = append(task.Nodes, &snapshot)
	}

	for i, nodeIDs := range plan.Steps {
		step := models.Step{Index: i, Entries: make([]models.StepEntry, 0, len(nodeIDs))}

		for _, nodeID := range nodeIDs {
			step.Entries = append(step.Entries, models.StepEntry{
				NodeID:       nodeID,
				GenerationID: uuid.NewSHA1(taskID, []byte(nodeID)).String(),
			})
		}

		task.Steps = append(task.Steps, step)
	}

	return task
}
