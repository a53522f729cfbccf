package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// Ingestor turns trigger events into act creation requests. Authentication
// and signature checks happen before Ingest is called.
type Ingestor struct {
	persistence *persistence.Persistence
	logger      *slog.Logger
}

func NewIngestor(p *persistence.Persistence, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		persistence: p,
		logger:      logger.With("module", "trigger_ingestor"),
	}
}

// Ingest validates payload against the trigger's schema and builds the
// act request. The trigger's default payload is merged under payload.
func (i *Ingestor) Ingest(ctx context.Context, workspaceID, triggerID string, payload map[string]any, requester string) (models.ActCreationRequest, error) {
	trigger, err := i.persistence.Triggers().GetByID(ctx, triggerID)
	if err != nil {
		return models.ActCreationRequest{}, err
	}

	if workspaceID != "" && trigger.WorkspaceID != workspaceID {
		return models.ActCreationRequest{}, fmt.Errorf("%w: %s", ErrWorkspaceMismatch, triggerID)
	}

	if !trigger.Enabled {
		return models.ActCreationRequest{}, fmt.Errorf("%w: %s", ErrTriggerDisabled, triggerID)
	}

	merged := make(map[string]any, len(trigger.Payload)+len(payload))
	maps.Copy(merged, trigger.Payload)
	maps.Copy(merged, payload)

	err = validatePayload(trigger, merged)
	if err != nil {
		i.logger.InfoContext(ctx, "Rejected trigger payload", "trigger_id", triggerID, "error", err)

		return models.ActCreationRequest{}, err
	}

	return models.ActCreationRequest{
		WorkspaceID: trigger.WorkspaceID,
		TriggerID:   trigger.ID,
		NodeID:      trigger.NodeID,
		Payload:     merged,
		Requester:   requester,
		Metadata:    map[string]any{"trigger_kind": string(trigger.Kind)},
	}, nil
}

// Manual builds the request of a run started by hand, without a stored trigger.
func (i *Ingestor) Manual(ctx context.Context, workspaceID, nodeID string, payload map[string]any, requester string) (models.ActCreationRequest, error) {
	_, err := i.persistence.Workspaces().GetByID(ctx, workspaceID)
	if err != nil {
		return models.ActCreationRequest{}, err
	}

	return models.ActCreationRequest{
		WorkspaceID: workspaceID,
		NodeID:      nodeID,
		Payload:     payload,
		Requester:   requester,
		Metadata:    map[string]any{"trigger_kind": string(models.TriggerKindManual)},
	}, nil
}

func validatePayload(trigger *models.Trigger, payload map[string]any) error {
	if trigger.Schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(trigger.Schema), gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: invalid payload schema: %w", ErrInvalidTrigger, err)
	}

	if result.Valid() {
		return nil
	}

	payloadErr := &PayloadError{TriggerID: trigger.ID}
	for _, desc := range result.Errors() {
		payloadErr.Problems = append(payloadErr.Problems, desc.String())
	}

	return payloadErr
}
