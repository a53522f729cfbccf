package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/actflow/pkg/eventbus"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// Scheduler fires enabled schedule triggers and publishes an act request
// for each tick. It keeps its entries in sync with trigger change events.
type Scheduler struct {
	persistence *persistence.Persistence
	ingestor    *Ingestor
	publisher   eventbus.EventPublisher
	cron        *cron.Cron
	logger      *slog.Logger

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	id   cron.EntryID
	expr string
}

type SchedulerOption func(*Scheduler)

// WithLocation runs the cron schedules in loc instead of UTC.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		s.cron = newCron(loc)
	}
}

func NewScheduler(
	p *persistence.Persistence,
	ingestor *Ingestor,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		persistence: p,
		ingestor:    ingestor,
		publisher:   publisher,
		cron:        newCron(time.UTC),
		logger:      logger.With("module", "scheduler"),
		entries:     make(map[string]scheduledEntry),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func newCron(loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithLocation(loc),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)
}

// Start schedules every stored trigger and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	triggers, err := s.persistence.Triggers().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}

	for _, trigger := range triggers {
		err = s.Sync(trigger)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule trigger", "trigger_id", trigger.ID, "error", err)
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "entries", s.Len())

	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Len returns how many triggers are scheduled.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Sync adds, replaces or removes the entry of a trigger to match its configuration.
func (s *Scheduler) Sync(trigger *models.Trigger) error {
	if trigger.Kind != models.TriggerKindSchedule || !trigger.Enabled {
		s.Remove(trigger.ID)

		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[trigger.ID]; ok {
		if current.expr == trigger.Cron {
			return nil
		}

		s.cron.Remove(current.id)
		delete(s.entries, trigger.ID)
	}

	triggerID := trigger.ID

	id, err := s.cron.AddFunc(trigger.Cron, func() {
		s.Fire(context.Background(), triggerID)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job for trigger %s: %w", trigger.ID, err)
	}

	s.entries[trigger.ID] = scheduledEntry{id: id, expr: trigger.Cron}
	s.logger.Info("Scheduled trigger", "trigger_id", trigger.ID, "cron", trigger.Cron)

	return nil
}

// Remove drops the entry of a trigger, if any.
func (s *Scheduler) Remove(triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[triggerID]; ok {
		s.cron.Remove(current.id)
		delete(s.entries, triggerID)
		s.logger.Info("Unscheduled trigger", "trigger_id", triggerID)
	}
}

// Fire publishes an act request for the trigger.
func (s *Scheduler) Fire(ctx context.Context, triggerID string) {
	request, err := s.ingestor.Ingest(ctx, "", triggerID, map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	}, "scheduler")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to ingest scheduled trigger", "trigger_id", triggerID, "error", err)

		return
	}

	event := events.NewActRequested(request)

	err = s.publisher.Publish(ctx, event.Key(), event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish act request", "trigger_id", triggerID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Requested scheduled act", "trigger_id", triggerID, "workspace_id", request.WorkspaceID)
}

// HandleTriggerChanged keeps the schedule in sync with trigger changes
// published by the trigger service.
func (s *Scheduler) HandleTriggerChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.TriggerChanged)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	if changed.Type == events.TriggerDeletedEvent {
		s.Remove(changed.TriggerID)

		return nil
	}

	trigger, err := s.persistence.Triggers().GetByID(ctx, changed.TriggerID)
	if persistence.IsNotFound(err) {
		s.Remove(changed.TriggerID)

		return nil
	}

	if err != nil {
		return err
	}

	return s.Sync(trigger)
}
