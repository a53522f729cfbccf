// Package act coordinates acts: it plans their tasks, runs the tasks under
// a process-wide concurrency limit, propagates cancellation and derives
// the aggregate act status.
package act

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/observability"
	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxConcurrentTasks = 4
	defaultCancelPollInterval = 500 * time.Millisecond
)

type Config struct {
	// MaxConcurrentTasks bounds how many tasks run at once in this process.
	MaxConcurrentTasks int

	// MaxGenerationRetries is the retry ceiling applied by RetryFailed.
	MaxGenerationRetries int

	// CancelPollInterval is how often a running act checks its cancellation marker.
	CancelPollInterval time.Duration
}

type Coordinator struct {
	persistence *persistence.Persistence
	runner      *task.Runner
	machine     *generation.Machine
	sink        observability.Sink
	tracer      trace.Tracer
	logger      *slog.Logger
	config      Config
	admission   *semaphore.Weighted

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Coordinator)

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func NewCoordinator(
	p *persistence.Persistence,
	runner *task.Runner,
	machine *generation.Machine,
	sink observability.Sink,
	logger *slog.Logger,
	config Config,
	opts ...Option,
) *Coordinator {
	if config.MaxConcurrentTasks <= 0 {
		config.MaxConcurrentTasks = defaultMaxConcurrentTasks
	}

	if config.CancelPollInterval <= 0 {
		config.CancelPollInterval = defaultCancelPollInterval
	}

	if sink == nil {
		sink = observability.Nop()
	}

	c := &Coordinator{
		persistence: p,
		runner:      runner,
		machine:     machine,
		sink:        sink,
		tracer:      otelhelper.NoopTracer(),
		logger:      logger.With("module", "act_coordinator"),
		config:      config,
		admission:   semaphore.NewWeighted(int64(config.MaxConcurrentTasks)),
		running:     make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateAct plans the workspace and persists the act with its tasks. Tasks
// are written before the act that references them; nothing runs yet.
//
// A request carrying a RequestID creates at most one act: when the act of
// that request already exists it is returned as stored, and tasks left by
// an interrupted earlier attempt are reused.
func (c *Coordinator) CreateAct(ctx context.Context, request models.ActCreationRequest) (*models.Act, error) {
	if request.RequestID != "" {
		existing, err := c.persistence.Acts().GetByID(ctx, ActIDForRequest(request.RequestID))
		if err == nil {
			c.logger.InfoContext(ctx, "Act already created for request", "act_id", existing.ID, "request_id", request.RequestID)

			return existing, nil
		}

		if !persistence.IsNotFound(err) {
			return nil, err
		}
	}

	workspace, err := c.persistence.Workspaces().GetByID(ctx, request.WorkspaceID)
	if err != nil {
		return nil, err
	}

	act, tasks, err := Plan(workspace, request)
	if err != nil {
		return nil, err
	}

	idempotent := request.RequestID != ""

	for _, t := range tasks {
		err = c.persistence.Tasks().Create(ctx, t)
		if idempotent && persistence.IsAlreadyExists(err) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
	}

	err = c.persistence.Acts().Create(ctx, act)
	if idempotent && persistence.IsAlreadyExists(err) {
		return c.persistence.Acts().GetByID(ctx, act.ID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create act: %w", err)
	}

	c.logger.InfoContext(ctx, "Created act", "act_id", act.ID, "workspace_id", act.WorkspaceID, "tasks", len(tasks))
	c.sink.Emit(ctx, events.NewActLifecycle(events.ActCreatedEvent, act))

	return act, nil
}

// Start runs the act in the background and returns once it is scheduled.
// Use Wait to block until every background run has returned.
func (c *Coordinator) Start(ctx context.Context, actID string) error {
	act, err := c.persistence.Acts().GetByID(ctx, actID)
	if err != nil {
		return err
	}

	if act.Status.IsTerminal() {
		return nil
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		_, err := c.Run(context.WithoutCancel(ctx), actID)
		if err != nil && !errors.Is(err, ErrActAlreadyRunning) {
			c.logger.ErrorContext(ctx, "Act run stopped", "act_id", actID, "error", err)
		}
	}()

	return nil
}

// Wait blocks until every run started with Start has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Run executes every non-terminal task of the act and returns the act in
// its aggregate status. Running an act interrupted by a crash resumes its
// tasks. Store failures and ctx cancellation are returned with the act
// left running so it can be resumed later.
func (c *Coordinator) Run(ctx context.Context, actID string) (*models.Act, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "act.run", attribute.String(otelhelper.ActIDKey, actID))
	defer span.End()

	act, err := c.persistence.Acts().GetByID(ctx, actID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if act.Status.IsTerminal() {
		return act, nil
	}

	runCtx, cancel, err := c.register(ctx, actID)
	if err != nil {
		return act, err
	}

	defer c.unregister(actID, cancel)

	cancelled, err := c.persistence.Acts().IsCancelled(ctx, actID)
	if err != nil {
		return act, err
	}

	if !cancelled {
		act, err = c.markRunning(ctx, act)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}
	}

	stopWatch := c.watch(runCtx, actID, cancel)
	defer stopWatch()

	err = c.runTasks(runCtx, act)
	if err != nil {
		if ctx.Err() == nil {
			otelhelper.SetError(span, err)
		}

		return act, err
	}

	act, err = c.finalize(context.WithoutCancel(ctx), actID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(act.Status)))

	return act, nil
}

func (c *Coordinator) runTasks(ctx context.Context, act *models.Act) error {
	var group errgroup.Group

	storeCtx := context.WithoutCancel(ctx)

	for _, taskID := range act.TaskIDs {
		t, err := c.persistence.Tasks().Get(storeCtx, act.ID, taskID)
		if err != nil {
			return err
		}

		if t.Status.IsTerminal() {
			continue
		}

		group.Go(func() error {
			return c.runTask(ctx, t)
		})
	}

	return group.Wait()
}

// runTask waits for an admission slot, then runs the task. A task still
// waiting when the act is cancelled is settled as cancelled without
// running any generation.
func (c *Coordinator) runTask(ctx context.Context, t *models.Task) error {
	err := c.admission.Acquire(ctx, 1)
	if err != nil {
		return c.cancelWaitingTask(ctx, t, err)
	}

	defer c.admission.Release(1)

	result, err := c.runner.Run(ctx, t)
	if errors.Is(err, task.ErrUnresolvedInput) {
		c.logger.ErrorContext(ctx, "Task failed on an invariant violation", "act_id", t.ActID, "task_id", t.ID, "error", err)

		return nil
	}

	if err != nil {
		return err
	}

	c.logger.DebugContext(ctx, "Task finished", "act_id", t.ActID, "task_id", t.ID, "status", result.Status)

	return nil
}

func (c *Coordinator) cancelWaitingTask(ctx context.Context, t *models.Task, acquireErr error) error {
	storeCtx := context.WithoutCancel(ctx)

	cancelled, err := c.persistence.Acts().IsCancelled(storeCtx, t.ActID)
	if err != nil {
		return err
	}

	if !cancelled {
		return acquireErr
	}

	_, err = c.runner.Run(storeCtx, t)

	return err
}

// Cancel records the act's cancellation and signals its in-process run. It
// does not wait for running tasks to stop. An act that never started is
// finalized immediately. Cancelling a terminal act does nothing.
func (c *Coordinator) Cancel(ctx context.Context, actID, reason, requestedBy string) (*models.Act, error) {
	act, err := c.persistence.Acts().GetByID(ctx, actID)
	if err != nil {
		return nil, err
	}

	if act.Status.IsTerminal() {
		return act, nil
	}

	err = c.persistence.Acts().RequestCancel(ctx, &models.ActCancellation{
		ActID:       actID,
		Reason:      reason,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Act cancellation requested", "act_id", actID, "reason", reason)

	c.mu.Lock()
	cancel, running := c.running[actID]
	c.mu.Unlock()

	if running {
		cancel()

		return act, nil
	}

	if act.Status != models.ExecutionStatusQueued {
		return act, nil
	}

	for _, taskID := range act.TaskIDs {
		_, err = c.runner.Cancel(ctx, actID, taskID)
		if err != nil {
			return nil, err
		}
	}

	return c.finalize(ctx, actID)
}

// Status returns the act with its tasks and their generations.
func (c *Coordinator) Status(ctx context.Context, actID string) (*models.ActStatusReport, error) {
	act, err := c.persistence.Acts().GetByID(ctx, actID)
	if err != nil {
		return nil, err
	}

	report := &models.ActStatusReport{
		Act:   act,
		Tasks: make([]*models.TaskStatusReport, 0, len(act.TaskIDs)),
		Count: make(map[models.ExecutionStatus]int),
	}

	for _, taskID := range act.TaskIDs {
		t, err := c.persistence.Tasks().Get(ctx, actID, taskID)
		if err != nil {
			return nil, err
		}

		generations, err := c.persistence.Generations().ListByTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		report.Tasks = append(report.Tasks, &models.TaskStatusReport{Task: t, Generations: generations})
		report.Count[t.Status]++
	}

	return report, nil
}

// ListActs returns the acts of a workspace.
func (c *Coordinator) ListActs(ctx context.Context, workspaceID string) ([]*models.Act, error) {
	return c.persistence.Acts().ListByWorkspace(ctx, workspaceID)
}

// RetryFailed re-queues the failed generations of every failed task and
// the act itself, keeping completed work. Each generation is bounded by
// the configured retry ceiling; when any of them has reached it nothing is
// re-queued. The act must be started again afterwards.
func (c *Coordinator) RetryFailed(ctx context.Context, actID string) (*models.Act, error) {
	act, err := c.persistence.Acts().GetByID(ctx, actID)
	if err != nil {
		return nil, err
	}

	if act.Status != models.ExecutionStatusFailed {
		return nil, fmt.Errorf("%w: act %s is %s", ErrActNotFailed, actID, act.Status)
	}

	retries, err := c.collectRetries(ctx, act)
	if err != nil {
		return nil, err
	}

	for _, r := range retries {
		err = c.retryTask(ctx, r)
		if err != nil {
			return nil, err
		}
	}

	act, err = c.persistence.Acts().Update(ctx, actID, func(a *models.Act) error {
		if a.Status != models.ExecutionStatusFailed {
			return persistence.ErrSkipWrite
		}

		a.Status = models.ExecutionStatusQueued
		a.FailedTaskID = ""
		a.FailedGenerationID = ""
		a.Error = ""
		a.EndedAt = nil

		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Act re-queued for retry", "act_id", actID)

	return act, nil
}

type taskRetry struct {
	task        *models.Task
	generations []*models.Generation
}

// collectRetries gathers the failed generations of the act's failed tasks
// and rejects the retry when one of them has reached the ceiling.
func (c *Coordinator) collectRetries(ctx context.Context, act *models.Act) ([]taskRetry, error) {
	var retries []taskRetry

	for _, taskID := range act.TaskIDs {
		t, err := c.persistence.Tasks().Get(ctx, act.ID, taskID)
		if err != nil {
			return nil, err
		}

		if t.Status != models.ExecutionStatusFailed {
			continue
		}

		generations, err := c.persistence.Generations().ListByTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}

		retry := taskRetry{task: t}

		for _, g := range generations {
			if g.Status != models.ExecutionStatusFailed {
				continue
			}

			if g.RetryCount >= c.config.MaxGenerationRetries {
				return nil, fmt.Errorf("%w: generation %s retried %d times", generation.ErrRetryLimitExceeded, g.ID, g.RetryCount)
			}

			retry.generations = append(retry.generations, g)
		}

		retries = append(retries, retry)
	}

	return retries, nil
}

func (c *Coordinator) retryTask(ctx context.Context, r taskRetry) error {
	for _, g := range r.generations {
		_, err := c.machine.Retry(ctx, g.ID, c.config.MaxGenerationRetries)
		if err != nil {
			return err
		}
	}

	_, err := c.persistence.Tasks().Update(ctx, r.task.ActID, r.task.ID, func(t *models.Task) error {
		if t.Status != models.ExecutionStatusFailed {
			return persistence.ErrSkipWrite
		}

		t.Status = models.ExecutionStatusQueued
		t.FailedGenerationID = ""
		t.Error = ""
		t.EndedAt = nil

		return nil
	})

	return err
}

func (c *Coordinator) markRunning(ctx context.Context, act *models.Act) (*models.Act, error) {
	started := false

	updated, err := c.persistence.Acts().Update(ctx, act.ID, func(a *models.Act) error {
		started = false

		if a.Status != models.ExecutionStatusQueued {
			return persistence.ErrSkipWrite
		}

		now := time.Now().UTC()
		a.Status = models.ExecutionStatusRunning

		if a.StartedAt == nil {
			a.StartedAt = &now
		}

		started = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if started {
		c.logger.InfoContext(ctx, "Act started", "act_id", act.ID)
		c.sink.Emit(ctx, events.NewActLifecycle(events.ActStartedEvent, updated))
	}

	return updated, nil
}

// finalize derives the aggregate status once every task is terminal.
func (c *Coordinator) finalize(ctx context.Context, actID string) (*models.Act, error) {
	act, err := c.persistence.Acts().GetByID(ctx, actID)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(act.TaskIDs))

	for _, taskID := range act.TaskIDs {
		t, err := c.persistence.Tasks().Get(ctx, actID, taskID)
		if err != nil {
			return nil, err
		}

		if !t.Status.IsTerminal() {
			return act, nil
		}

		tasks = append(tasks, t)
	}

	status, failed := Aggregate(tasks)
	finished := false

	act, err = c.persistence.Acts().Update(ctx, actID, func(a *models.Act) error {
		finished = false

		if !models.CanTransition(a.Status, status) {
			return persistence.ErrSkipWrite
		}

		now := time.Now().UTC()
		a.Status = status
		a.EndedAt = &now

		if failed != nil {
			a.FailedTaskID = failed.ID
			a.FailedGenerationID = failed.FailedGenerationID
			a.Error = failed.Error
		}

		finished = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if finished {
		c.logger.InfoContext(ctx, "Act finished", "act_id", actID, "status", act.Status)
		c.sink.Emit(ctx, events.NewActLifecycle(actEventType(act.Status), act))
	}

	return act, nil
}

// Aggregate derives an act status from terminal tasks: completed when all
// completed, failed when any failed, cancelled otherwise. The first failed
// task in act order is returned with a failed status.
func Aggregate(tasks []*models.Task) (models.ExecutionStatus, *models.Task) {
	completed := 0

	for _, t := range tasks {
		switch t.Status {
		case models.ExecutionStatusFailed:
			return models.ExecutionStatusFailed, t
		case models.ExecutionStatusCompleted:
			completed++
		}
	}

	if completed == len(tasks) {
		return models.ExecutionStatusCompleted, nil
	}

	return models.ExecutionStatusCancelled, nil
}

func (c *Coordinator) register(ctx context.Context, actID string) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.running[actID]; ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrActAlreadyRunning, actID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running[actID] = cancel

	return runCtx, cancel, nil
}

func (c *Coordinator) unregister(actID string, cancel context.CancelFunc) {
	cancel()

	c.mu.Lock()
	delete(c.running, actID)
	c.mu.Unlock()
}

// watch polls the act's cancellation marker and cancels the run context
// once it appears, so a cancel issued from another process reaches the
// executors running here.
func (c *Coordinator) watch(ctx context.Context, actID string, cancel context.CancelFunc) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.config.CancelPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				cancelled, err := c.persistence.Acts().IsCancelled(ctx, actID)
				if err != nil {
					c.logger.WarnContext(ctx, "Failed to check act cancellation", "act_id", actID, "error", err)

					continue
				}

				if cancelled {
					c.logger.InfoContext(ctx, "Act cancellation observed", "act_id", actID)
					cancel()

					return
				}
			}
		}
	}()

	return func() { close(done) }
}

func actEventType(status models.ExecutionStatus) events.EventType {
	switch status {
	case models.ExecutionStatusCompleted:
		return events.ActCompletedEvent
	case models.ExecutionStatusFailed:
		return events.ActFailedEvent
	default:
		return events.ActCancelledEvent
	}
}
