// Package generation implements the per-node execution state machine:
// queued -> running -> completed | failed | cancelled, plus the explicit
// failed -> queued retry.
//
// Every transition is a conditional write of the generation record. When
// two writers race for a terminal status the first write wins and the
// loser observes ErrInvalidTransition without overwriting it.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/observability"
	"github.com/dukex/actflow/pkg/persistence"
)

type Machine struct {
	generations *persistence.GenerationRepository
	sink        observability.Sink
	logger      *slog.Logger
}

func NewMachine(p *persistence.Persistence, sink observability.Sink, logger *slog.Logger) *Machine {
	if sink == nil {
		sink = observability.Nop()
	}

	return &Machine{
		generations: p.Generations(),
		sink:        sink,
		logger:      logger.With("module", "generation"),
	}
}

// Create persists a queued generation. Creating a generation that already
// exists returns the stored record, so plans can be re-dispatched after a crash.
func (m *Machine) Create(ctx context.Context, generation *models.Generation) (*models.Generation, error) {
	now := time.Now().UTC()
	generation.Status = models.ExecutionStatusQueued
	generation.CreatedAt = now
	generation.UpdatedAt = now

	err := m.generations.Create(ctx, generation)
	if persistence.IsAlreadyExists(err) {
		return m.generations.GetByID(ctx, generation.ID)
	}

	if err != nil {
		return nil, err
	}

	m.sink.Emit(ctx, events.NewGenerationLifecycle(events.GenerationCreatedEvent, generation))

	return generation, nil
}

// Get returns the current record of a generation.
func (m *Machine) Get(ctx context.Context, id string) (*models.Generation, error) {
	return m.generations.GetByID(ctx, id)
}

// Start moves a queued generation to running and records its input
// snapshot. The snapshot is written once and never replaced.
//
// Starting a completed or cancelled generation is a no-op returning the
// stored record. Starting a running generation, which happens when a
// crashed run is resumed, also returns the stored record; its original
// input snapshot stays authoritative. A failed generation must be retried
// before it can start again.
func (m *Machine) Start(ctx context.Context, id string, input map[string]any) (*models.Generation, error) {
	var transitionErr error

	started := false

	generation, err := m.generations.Update(ctx, id, func(g *models.Generation) error {
		transitionErr = nil
		started = false

		switch g.Status {
		case models.ExecutionStatusCompleted, models.ExecutionStatusCancelled, models.ExecutionStatusRunning:
			return persistence.ErrSkipWrite
		case models.ExecutionStatusQueued:
		default:
			transitionErr = newTransitionError(id, g.Status, models.ExecutionStatusRunning, ErrInvalidTransition)

			return transitionErr
		}

		now := time.Now().UTC()
		g.Status = models.ExecutionStatusRunning
		g.StartedAt = &now
		g.EndedAt = nil

		if g.Input == nil {
			g.Input = input
			if g.Input == nil {
				g.Input = map[string]any{}
			}
		}

		started = true

		return nil
	})
	if transitionErr != nil {
		m.logger.ErrorContext(ctx, "Rejected generation start", "generation_id", id, "error", transitionErr)

		return generation, transitionErr
	}

	if err != nil {
		return nil, err
	}

	if started {
		m.sink.Emit(ctx, events.NewGenerationLifecycle(events.GenerationStartedEvent, generation))
	}

	return generation, nil
}

// Complete records the output of a running generation.
func (m *Machine) Complete(ctx context.Context, id string, output map[string]any) (*models.Generation, error) {
	return m.finish(ctx, id, models.ExecutionStatusCompleted, events.GenerationCompletedEvent, func(g *models.Generation) {
		g.Output = output
		g.Error = nil
	})
}

// Fail records the error of a running generation.
func (m *Machine) Fail(ctx context.Context, id string, generationErr *models.GenerationError) (*models.Generation, error) {
	return m.finish(ctx, id, models.ExecutionStatusFailed, events.GenerationFailedEvent, func(g *models.Generation) {
		g.Error = generationErr
	})
}

func (m *Machine) finish(
	ctx context.Context,
	id string,
	to models.ExecutionStatus,
	eventType events.EventType,
	apply func(*models.Generation),
) (*models.Generation, error) {
	var transitionErr *TransitionError

	generation, err := m.generations.Update(ctx, id, func(g *models.Generation) error {
		transitionErr = nil

		if g.Status != models.ExecutionStatusRunning {
			transitionErr = newTransitionError(id, g.Status, to, ErrInvalidTransition)

			return transitionErr
		}

		now := time.Now().UTC()
		g.Status = to
		g.EndedAt = &now
		apply(g)

		return nil
	})
	if transitionErr != nil {
		m.logRejected(ctx, transitionErr)

		return generation, transitionErr
	}

	if err != nil {
		return nil, err
	}

	m.sink.Emit(ctx, events.NewGenerationLifecycle(eventType, generation))

	return generation, nil
}

// Cancel moves a queued or running generation to cancelled. A running
// executor is not interrupted here; it observes the act's cancellation
// signal on its own. Cancelling a cancelled generation returns it unchanged;
// cancelling a completed or failed one returns ErrAlreadyTerminal.
func (m *Machine) Cancel(ctx context.Context, id string) (*models.Generation, error) {
	var transitionErr *TransitionError

	cancelled := false

	generation, err := m.generations.Update(ctx, id, func(g *models.Generation) error {
		transitionErr = nil
		cancelled = false

		switch g.Status {
		case models.ExecutionStatusCancelled:
			return persistence.ErrSkipWrite
		case models.ExecutionStatusCompleted, models.ExecutionStatusFailed:
			transitionErr = newTransitionError(id, g.Status, models.ExecutionStatusCancelled, ErrAlreadyTerminal)

			return transitionErr
		}

		now := time.Now().UTC()
		g.Status = models.ExecutionStatusCancelled
		g.EndedAt = &now
		cancelled = true

		return nil
	})
	if transitionErr != nil {
		m.logger.WarnContext(ctx, "Generation finished before cancellation", "generation_id", id, "status", transitionErr.From)

		return generation, transitionErr
	}

	if err != nil {
		return nil, err
	}

	if cancelled {
		m.sink.Emit(ctx, events.NewGenerationLifecycle(events.GenerationCancelledEvent, generation))
	}

	return generation, nil
}

// Retry re-queues a failed generation, keeping its input snapshot. It is
// rejected once the generation has been retried maxRetries times.
func (m *Machine) Retry(ctx context.Context, id string, maxRetries int) (*models.Generation, error) {
	var retryErr error

	generation, err := m.generations.Update(ctx, id, func(g *models.Generation) error {
		retryErr = nil

		if g.Status != models.ExecutionStatusFailed {
			retryErr = newTransitionError(id, g.Status, models.ExecutionStatusQueued, ErrInvalidTransition)

			return retryErr
		}

		if g.RetryCount >= maxRetries {
			retryErr = newTransitionError(id, g.Status, models.ExecutionStatusQueued, ErrRetryLimitExceeded)

			return retryErr
		}

		g.Status = models.ExecutionStatusQueued
		g.RetryCount++
		g.Output = nil
		g.Error = nil
		g.StartedAt = nil
		g.EndedAt = nil

		return nil
	})
	if retryErr != nil {
		return generation, retryErr
	}

	if err != nil {
		return nil, err
	}

	m.sink.Emit(ctx, events.NewGenerationLifecycle(events.GenerationRetriedEvent, generation))

	return generation, nil
}

// logRejected logs a lost race for a terminal status as a warning and any
// other rejected transition as an error.
func (m *Machine) logRejected(ctx context.Context, err *TransitionError) {
	if err.From.IsTerminal() {
		m.logger.WarnContext(ctx, "Discarded transition, generation already terminal",
			"generation_id", err.GenerationID, "status", err.From, "attempted", err.To)

		return
	}

	m.logger.ErrorContext(ctx, "Invalid generation transition",
		"generation_id", err.GenerationID, "status", err.From, "attempted", err.To, "error", errors.Unwrap(err))
}
