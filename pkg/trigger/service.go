// Package trigger is the edge of the engine: it stores trigger
// configurations, turns trigger events into act creation requests and fires
// schedule triggers.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actflow/pkg/eventbus"
	"github.com/dukex/actflow/pkg/events"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

// Service manages trigger configurations.
type Service struct {
	persistence *persistence.Persistence
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService creates a trigger service. publisher may be nil when no
// scheduler needs to hear about changes.
func NewService(p *persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		publisher:   publisher,
		validate:    models.NewValidator(),
		logger:      logger.With("module", "trigger_service"),
	}
}

// Save validates and stores a trigger, creating an id when it has none.
func (s *Service) Save(ctx context.Context, trigger *models.Trigger) (*models.Trigger, error) {
	err := s.validate.Struct(trigger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	err = s.check(ctx, trigger)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	err = s.persistence.Triggers().Save(ctx, trigger)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Saved trigger", "trigger_id", trigger.ID, "workspace_id", trigger.WorkspaceID, "kind", trigger.Kind)
	s.publish(ctx, events.NewTriggerChanged(events.TriggerCreatedEvent, trigger))

	return trigger, nil
}

// Get returns a trigger.
func (s *Service) Get(ctx context.Context, triggerID string) (*models.Trigger, error) {
	return s.persistence.Triggers().GetByID(ctx, triggerID)
}

// Delete removes a trigger.
func (s *Service) Delete(ctx context.Context, triggerID string) error {
	trigger, err := s.persistence.Triggers().GetByID(ctx, triggerID)
	if err != nil {
		return err
	}

	err = s.persistence.Triggers().Delete(ctx, triggerID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Deleted trigger", "trigger_id", triggerID)
	s.publish(ctx, events.NewTriggerChanged(events.TriggerDeletedEvent, trigger))

	return nil
}

// ListByWorkspace returns the triggers of a workspace.
func (s *Service) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Trigger, error) {
	return s.persistence.Triggers().ListByWorkspace(ctx, workspaceID)
}

// check verifies what struct tags cannot: the cron expression, the payload
// schema and the trigger node of the workspace.
func (s *Service) check(ctx context.Context, trigger *models.Trigger) error {
	if trigger.Kind == models.TriggerKindSchedule {
		_, err := cron.ParseStandard(trigger.Cron)
		if err != nil {
			return fmt.Errorf("%w: invalid cron expression: %w", ErrInvalidTrigger, err)
		}
	}

	if trigger.Schema != nil {
		_, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(trigger.Schema))
		if err != nil {
			return fmt.Errorf("%w: invalid payload schema: %w", ErrInvalidTrigger, err)
		}
	}

	workspace, err := s.persistence.Workspaces().GetByID(ctx, trigger.WorkspaceID)
	if err != nil {
		return err
	}

	if trigger.NodeID != "" {
		node, ok := workspace.NodeByID(trigger.NodeID)
		if !ok || !node.IsTrigger() {
			return fmt.Errorf("%w: node %s is not a trigger node of workspace %s", ErrInvalidTrigger, trigger.NodeID, workspace.ID)
		}
	}

	return nil
}

func (s *Service) publish(ctx context.Context, event events.TriggerChanged) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, event.Key(), event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish trigger change", "trigger_id", event.TriggerID, "error", err)
	}
}
