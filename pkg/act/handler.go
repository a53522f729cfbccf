package act

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/graph"
	"github.com/dukex/actflow/pkg/persistence"
)

// HandleActRequested creates the requested act and runs it to completion.
// The act id is derived from the event id, so a redelivered request
// resumes the act of the first delivery instead of creating another one.
// Requests that can never succeed, such as a malformed graph or a missing
// workspace, are logged and dropped. An interrupted run is returned as an
// error so the request is redelivered and the act resumed.
func (c *Coordinator) HandleActRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ActRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	request := requested.Request
	if request.RequestID == "" {
		request.RequestID = requested.ID
	}

	act, err := c.CreateAct(ctx, request)
	if err != nil {
		if isPermanent(err) {
			c.logger.WarnContext(ctx, "Dropped act request", "workspace_id", request.WorkspaceID,
				"trigger_id", request.TriggerID, "error", err)

			return nil
		}

		return err
	}

	finished, err := c.Run(ctx, act.ID)
	if errors.Is(err, ErrActAlreadyRunning) {
		c.logger.InfoContext(ctx, "Act already running in this process", "act_id", act.ID)

		return nil
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "Act run interrupted", "act_id", act.ID, "error", err)

		return fmt.Errorf("act %s interrupted: %w", act.ID, err)
	}

	c.logger.InfoContext(ctx, "Act request handled", "act_id", act.ID, "status", finished.Status)

	return nil
}

func isPermanent(err error) bool {
	return graph.IsGraphError(err) ||
		errors.Is(err, ErrNoExecutableTasks) ||
		errors.Is(err, ErrTriggerNodeNotFound) ||
		persistence.IsNotFound(err)
}
