package persistence

import (
	"context"
	"slices"

	"github.com/dukex/actflow/pkg/models"
)

// TriggerRepository stores trigger configurations.
type TriggerRepository struct {
	p *Persistence
}

// Save writes the trigger and indexes it under its workspace. Moving a
// trigger to another workspace removes it from the previous one's index.
func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	previous, err := r.GetByID(ctx, trigger.ID)
	if err != nil && !IsNotFound(err) {
		return err
	}

	_, err = putJSON(ctx, r.p.store, triggerKey(trigger.ID), trigger)
	if err != nil {
		return NewRecordError("Save", "trigger", trigger.ID, err)
	}

	err = markIndex(ctx, r.p.store, workspaceTriggersPrefix(trigger.WorkspaceID)+trigger.ID)
	if err != nil {
		return NewRecordError("Save", "trigger", trigger.ID, err)
	}

	if previous != nil && previous.WorkspaceID != trigger.WorkspaceID {
		err = r.p.store.Delete(ctx, workspaceTriggersPrefix(previous.WorkspaceID)+trigger.ID)
		if err != nil {
			return NewRecordError("Save", "trigger", trigger.ID, err)
		}
	}

	return nil
}

// GetByID returns the trigger with the given id.
func (r *TriggerRepository) GetByID(ctx context.Context, triggerID string) (*models.Trigger, error) {
	trigger, _, err := getJSON[models.Trigger](ctx, r.p.store, triggerKey(triggerID))
	if err != nil {
		return nil, NewRecordError("GetByID", "trigger", triggerID, notFoundOr(err, ErrTriggerNotFound))
	}

	return trigger, nil
}

// Delete removes the trigger record, then its index entry.
func (r *TriggerRepository) Delete(ctx context.Context, triggerID string) error {
	trigger, err := r.GetByID(ctx, triggerID)
	if err != nil {
		return err
	}

	err = r.p.store.Delete(ctx, triggerKey(triggerID))
	if err != nil {
		return NewRecordError("Delete", "trigger", triggerID, err)
	}

	err = r.p.store.Delete(ctx, workspaceTriggersPrefix(trigger.WorkspaceID)+triggerID)
	if err != nil {
		return NewRecordError("Delete", "trigger", triggerID, err)
	}

	return nil
}

// ListByWorkspace returns the triggers of a workspace ordered by id.
// Index entries left behind by a trigger that moved away are skipped.
func (r *TriggerRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Trigger, error) {
	ids, err := idsFromIndex(ctx, r.p.store, workspaceTriggersPrefix(workspaceID))
	if err != nil {
		return nil, err
	}

	triggers, err := r.getAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(triggers, func(t *models.Trigger) bool {
		return t.WorkspaceID != workspaceID
	}), nil
}

// List returns every trigger ordered by id.
func (r *TriggerRepository) List(ctx context.Context) ([]*models.Trigger, error) {
	ids, err := idsFromIndex(ctx, r.p.store, triggersPrefix)
	if err != nil {
		return nil, err
	}

	return r.getAll(ctx, ids)
}

func (r *TriggerRepository) getAll(ctx context.Context, ids []string) ([]*models.Trigger, error) {
	triggers := make([]*models.Trigger, 0, len(ids))

	for _, id := range ids {
		trigger, err := r.GetByID(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}

			return nil, err
		}

		triggers = append(triggers, trigger)
	}

	return triggers, nil
}
