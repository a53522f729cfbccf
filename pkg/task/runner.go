// Package task drives one task through its steps. Steps run strictly in
// order; the generations of a step are dispatched concurrently and the
// next step starts only once every generation of the current one is
// terminal. A failed generation stops the task before its next step.
//
// Run can be called again on a task interrupted by a crash: completed
// generations are skipped and their stored outputs feed the remaining
// steps, so an executor never runs twice for a completed generation.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/observability"
	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const cancelledMessage = "act cancelled"

// Executor runs the executor registered for a node's type.
type Executor interface {
	Execute(ctx context.Context, node *models.Node, input map[string]any) (map[string]any, error)
}

type Runner struct {
	persistence *persistence.Persistence
	machine     *generation.Machine
	executor    Executor
	sink        observability.Sink
	tracer      trace.Tracer
	logger      *slog.Logger
}

type Option func(*Runner)

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

func NewRunner(
	p *persistence.Persistence,
	machine *generation.Machine,
	executor Executor,
	sink observability.Sink,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	if sink == nil {
		sink = observability.Nop()
	}

	r := &Runner{
		persistence: p,
		machine:     machine,
		executor:    executor,
		sink:        sink,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "task_runner"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// stepOutcome is the aggregate state of a step once all its generations are terminal.
type stepOutcome struct {
	failed    *models.Generation
	cancelled bool
}

// Run executes the task until it reaches a terminal status.
//
// Cancelling ctx is how the act interrupts running executors; store writes
// are detached from it so the resulting transitions are still recorded.
// When ctx ends without a cancellation marker on the act, the host is
// shutting down: Run returns ctx.Err() and leaves the task resumable.
// Store failures are returned to the caller as they are.
func (r *Runner) Run(ctx context.Context, task *models.Task) (*models.TaskResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "task.run",
		attribute.String(otelhelper.WorkspaceIDKey, task.WorkspaceID),
		attribute.String(otelhelper.ActIDKey, task.ActID),
		attribute.String(otelhelper.TaskIDKey, task.ID),
	)
	defer span.End()

	storeCtx := context.WithoutCancel(ctx)
	logger := r.logger.With("act_id", task.ActID, "task_id", task.ID)

	current, err := r.persistence.Tasks().Get(storeCtx, task.ActID, task.ID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	generations, err := r.loadGenerations(storeCtx, current)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if current.Status.IsTerminal() {
		logger.DebugContext(ctx, "Task already terminal", "status", current.Status)

		return buildResult(current, generations), nil
	}

	cancelled, err := r.cancelRequested(ctx, storeCtx, current.ActID)
	if err != nil {
		return nil, err
	}

	if cancelled {
		return r.finish(storeCtx, current, generations, models.ExecutionStatusCancelled, "", cancelledMessage)
	}

	current, err = r.markRunning(storeCtx, current)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	logger.InfoContext(ctx, "Running task", "steps", len(current.Steps), "dispatched_steps", current.DispatchedSteps)

	outputs := make(map[string]map[string]any)

	for _, step := range current.Steps {
		outcome, err := r.runStep(ctx, storeCtx, current, step, generations, outputs)
		if errors.Is(err, ErrUnresolvedInput) {
			logger.ErrorContext(ctx, "Task stopped on unresolved input", "step", step.Index, "error", err)
			otelhelper.SetError(span, err)

			result, finishErr := r.finish(storeCtx, current, generations, models.ExecutionStatusFailed, "", err.Error())
			if finishErr != nil {
				return nil, finishErr
			}

			return result, err
		}

		if err != nil {
			if ctx.Err() == nil {
				otelhelper.SetError(span, err)
			}

			return nil, err
		}

		if outcome.failed != nil {
			logger.InfoContext(ctx, "Task failed", "step", step.Index, "generation_id", outcome.failed.ID)

			return r.finish(storeCtx, current, generations, models.ExecutionStatusFailed, outcome.failed.ID, generationErrorMessage(outcome.failed))
		}

		if outcome.cancelled {
			logger.InfoContext(ctx, "Task cancelled", "step", step.Index)

			return r.finish(storeCtx, current, generations, models.ExecutionStatusCancelled, "", cancelledMessage)
		}
	}

	logger.InfoContext(ctx, "Task completed")

	return r.finish(storeCtx, current, generations, models.ExecutionStatusCompleted, "", "")
}

// Cancel marks a task that never started as cancelled. Running tasks are
// stopped by their own runner once it observes the act's cancellation.
func (r *Runner) Cancel(ctx context.Context, actID, taskID string) (*models.Task, error) {
	cancelled := false

	task, err := r.persistence.Tasks().Update(ctx, actID, taskID, func(t *models.Task) error {
		cancelled = false

		if t.Status != models.ExecutionStatusQueued {
			return persistence.ErrSkipWrite
		}

		now := time.Now().UTC()
		t.Status = models.ExecutionStatusCancelled
		t.EndedAt = &now
		t.Error = cancelledMessage
		cancelled = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		r.sink.Emit(ctx, events.NewTaskLifecycle(events.TaskCancelledEvent, task))
	}

	return task, nil
}

func (r *Runner) runStep(
	ctx, storeCtx context.Context,
	task *models.Task,
	step models.Step,
	generations map[string]*models.Generation,
	outputs map[string]map[string]any,
) (stepOutcome, error) {
	if stepCompleted(step, generations) {
		for _, entry := range step.Entries {
			g := generations[entry.GenerationID]
			outputs[g.NodeID] = g.Output
		}

		return stepOutcome{}, nil
	}

	cancelled, err := r.cancelRequested(ctx, storeCtx, task.ActID)
	if err != nil {
		return stepOutcome{}, err
	}

	if cancelled {
		return stepOutcome{cancelled: true}, nil
	}

	err = r.dispatch(storeCtx, task, step, generations)
	if err != nil {
		return stepOutcome{}, err
	}

	results := make([]*models.Generation, len(step.Entries))

	var group errgroup.Group

	for i, entry := range step.Entries {
		g := generations[entry.GenerationID]

		group.Go(func() error {
			result, err := r.runGeneration(ctx, storeCtx, task, g, outputs)
			results[i] = result

			return err
		})
	}

	err = group.Wait()

	for _, g := range results {
		if g != nil {
			generations[g.ID] = g
		}
	}

	if err != nil {
		return stepOutcome{}, err
	}

	var outcome stepOutcome

	for _, g := range results {
		switch g.Status {
		case models.ExecutionStatusCompleted:
			outputs[g.NodeID] = g.Output
		case models.ExecutionStatusFailed:
			if outcome.failed == nil {
				outcome.failed = g
			}
		case models.ExecutionStatusCancelled:
			outcome.cancelled = true
		default:
			return stepOutcome{}, fmt.Errorf("generation %s left %s after step %d", g.ID, g.Status, step.Index)
		}
	}

	return outcome, nil
}

// dispatch creates the generation records of a step, then records the step
// as dispatched on the task.
func (r *Runner) dispatch(ctx context.Context, task *models.Task, step models.Step, generations map[string]*models.Generation) error {
	for _, entry := range step.Entries {
		if _, ok := generations[entry.GenerationID]; ok {
			continue
		}

		node, ok := task.NodeByID(entry.NodeID)
		if !ok {
			return fmt.Errorf("%w: node %s is not part of task %s", ErrUnresolvedInput, entry.NodeID, task.ID)
		}

		g, err := r.machine.Create(ctx, &models.Generation{
			ID:          entry.GenerationID,
			TaskID:      task.ID,
			ActID:       task.ActID,
			WorkspaceID: task.WorkspaceID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			StepIndex:   step.Index,
		})
		if err != nil {
			return err
		}

		generations[g.ID] = g
	}

	if task.DispatchedSteps > step.Index {
		return nil
	}

	updated, err := r.persistence.Tasks().Update(ctx, task.ActID, task.ID, func(t *models.Task) error {
		if t.DispatchedSteps > step.Index {
			return persistence.ErrSkipWrite
		}

		t.DispatchedSteps = step.Index + 1

		return nil
	})
	if err != nil {
		return err
	}

	task.DispatchedSteps = updated.DispatchedSteps

	return nil
}

func (r *Runner) runGeneration(
	ctx, storeCtx context.Context,
	task *models.Task,
	g *models.Generation,
	outputs map[string]map[string]any,
) (*models.Generation, error) {
	if g.Status.IsTerminal() {
		return g, nil
	}

	node, ok := task.NodeByID(g.NodeID)
	if !ok {
		return g, fmt.Errorf("%w: node %s is not part of task %s", ErrUnresolvedInput, g.NodeID, task.ID)
	}

	var input map[string]any

	if g.Status == models.ExecutionStatusQueued {
		cancelled, err := r.cancelRequested(ctx, storeCtx, task.ActID)
		if err != nil {
			return g, err
		}

		if cancelled {
			return r.settle(storeCtx, g.ID)(r.machine.Cancel(storeCtx, g.ID))
		}

		input, err = ResolveInput(task, node, outputs)
		if err != nil {
			return g, err
		}
	}

	started, err := r.machine.Start(storeCtx, g.ID, input)
	if err != nil {
		return g, err
	}

	if started.Status != models.ExecutionStatusRunning {
		return started, nil
	}

	execCtx, span := otelhelper.StartSpan(ctx, r.tracer, "generation.execute",
		attribute.String(otelhelper.GenerationIDKey, g.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.Int(otelhelper.StepIndexKey, g.StepIndex),
	)
	defer span.End()

	output, execErr := r.executor.Execute(execCtx, node, started.Input)
	if execErr == nil {
		return r.settle(storeCtx, g.ID)(r.machine.Complete(storeCtx, g.ID, output))
	}

	otelhelper.SetError(span, execErr)

	if ctx.Err() != nil {
		cancelled, err := r.persistence.Acts().IsCancelled(storeCtx, task.ActID)
		if err != nil {
			return started, err
		}

		if !cancelled {
			return started, ctx.Err()
		}

		return r.settle(storeCtx, g.ID)(r.machine.Cancel(storeCtx, g.ID))
	}

	executorErr := protocol.AsExecutorError(string(node.Type), execErr)

	r.logger.InfoContext(ctx, "Generation failed",
		"task_id", task.ID, "generation_id", g.ID, "node_id", node.ID, "error", executorErr)

	return r.settle(storeCtx, g.ID)(r.machine.Fail(storeCtx, g.ID, &models.GenerationError{
		Message: executorErr.Message,
		Code:    executorErr.Code,
		Details: executorErr.Details,
	}))
}

// settle turns a lost race for a terminal status into the stored winner.
func (r *Runner) settle(ctx context.Context, id string) func(*models.Generation, error) (*models.Generation, error) {
	return func(g *models.Generation, err error) (*models.Generation, error) {
		var transitionErr *generation.TransitionError
		if errors.As(err, &transitionErr) {
			return r.machine.Get(ctx, id)
		}

		return g, err
	}
}

func (r *Runner) markRunning(ctx context.Context, task *models.Task) (*models.Task, error) {
	started := false

	updated, err := r.persistence.Tasks().Update(ctx, task.ActID, task.ID, func(t *models.Task) error {
		started = false

		if t.Status != models.ExecutionStatusQueued {
			return persistence.ErrSkipWrite
		}

		now := time.Now().UTC()
		t.Status = models.ExecutionStatusRunning
		t.StartedAt = &now
		started = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		r.sink.Emit(ctx, events.NewTaskLifecycle(events.TaskStartedEvent, updated))
	}

	return updated, nil
}

func (r *Runner) finish(
	ctx context.Context,
	task *models.Task,
	generations map[string]*models.Generation,
	status models.ExecutionStatus,
	failedGenerationID, message string,
) (*models.TaskResult, error) {
	finished := false

	updated, err := r.persistence.Tasks().Update(ctx, task.ActID, task.ID, func(t *models.Task) error {
		finished = false

		if !models.CanTransition(t.Status, status) {
			return persistence.ErrSkipWrite
		}

		now := time.Now().UTC()
		t.Status = status
		t.EndedAt = &now
		t.FailedGenerationID = failedGenerationID
		t.Error = message
		finished = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if finished {
		r.sink.Emit(ctx, events.NewTaskLifecycle(taskEventType(status), updated))
	}

	return buildResult(updated, generations), nil
}

// cancelRequested reports whether the act was cancelled. A done ctx
// without a cancellation marker is returned as ctx.Err().
func (r *Runner) cancelRequested(ctx, storeCtx context.Context, actID string) (bool, error) {
	cancelled, err := r.persistence.Acts().IsCancelled(storeCtx, actID)
	if err != nil || cancelled {
		return cancelled, err
	}

	return false, ctx.Err()
}

func (r *Runner) loadGenerations(ctx context.Context, task *models.Task) (map[string]*models.Generation, error) {
	stored, err := r.persistence.Generations().ListByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	generations := make(map[string]*models.Generation, len(stored))
	for _, g := range stored {
		generations[g.ID] = g
	}

	return generations, nil
}

func stepCompleted(step models.Step, generations map[string]*models.Generation) bool {
	for _, entry := range step.Entries {
		g, ok := generations[entry.GenerationID]
		if !ok || g.Status != models.ExecutionStatusCompleted {
			return false
		}
	}

	return true
}

func buildResult(task *models.Task, generations map[string]*models.Generation) *models.TaskResult {
	result := &models.TaskResult{
		TaskID:             task.ID,
		Status:             task.Status,
		FailedGenerationID: task.FailedGenerationID,
		Error:              task.Error,
		Outputs:            make(map[string]map[string]any),
	}

	for _, g := range generations {
		if g.Status == models.ExecutionStatusCompleted {
			result.Outputs[g.NodeID] = g.Output
		}
	}

	return result
}

func generationErrorMessage(g *models.Generation) string {
	if g.Error == nil {
		return "generation " + g.ID + " failed"
	}

	return g.Error.Message
}

func taskEventType(status models.ExecutionStatus) events.EventType {
	switch status {
	case models.ExecutionStatusCompleted:
		return events.TaskCompletedEvent
	case models.ExecutionStatusCancelled:
		return events.TaskCancelledEvent
	default:
		return events.TaskFailedEvent
	}
}
