package persistence

import (
	"context"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/store"
)

// ActRepository stores acts, their workspace index and cancellation markers.
type ActRepository struct {
	p *Persistence
}

// Create writes a new act and indexes it under its workspace.
// The act's tasks must already be persisted. Creating an existing act
// rewrites its index entry and returns ErrAlreadyExists.
func (r *ActRepository) Create(ctx context.Context, act *models.Act) error {
	_, err := putJSON(ctx, r.p.store, actKey(act.ID), act, store.IfNotExists())
	if err != nil && !store.IsConflict(err) {
		return NewRecordError("Create", "act", act.ID, err)
	}

	indexErr := markIndex(ctx, r.p.store, workspaceActsPrefix(act.WorkspaceID)+act.ID)
	if indexErr != nil {
		return NewRecordError("Create", "act", act.ID, indexErr)
	}

	if err != nil {
		return NewRecordError("Create", "act", act.ID, ErrAlreadyExists)
	}

	return nil
}

// GetByID returns the act with the given id.
func (r *ActRepository) GetByID(ctx context.Context, actID string) (*models.Act, error) {
	act, _, err := getJSON[models.Act](ctx, r.p.store, actKey(actID))
	if err != nil {
		return nil, NewRecordError("GetByID", "act", actID, notFoundOr(err, ErrActNotFound))
	}

	return act, nil
}

// Update applies mutate to the stored act with optimistic concurrency.
func (r *ActRepository) Update(ctx context.Context, actID string, mutate func(*models.Act) error) (*models.Act, error) {
	act, err := update(ctx, r.p, actKey(actID), func(act *models.Act) error {
		err := mutate(act)
		if err == nil {
			act.UpdatedAt = time.Now().UTC()
		}

		return err
	})
	if err != nil {
		return act, NewRecordError("Update", "act", actID, notFoundOr(err, ErrActNotFound))
	}

	return act, nil
}

// ListByWorkspace returns every act of a workspace ordered by id.
func (r *ActRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Act, error) {
	ids, err := idsFromIndex(ctx, r.p.store, workspaceActsPrefix(workspaceID))
	if err != nil {
		return nil, err
	}

	acts := make([]*models.Act, 0, len(ids))

	for _, id := range ids {
		act, err := r.GetByID(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				// index entries can outlive a crashed create
				continue
			}

			return nil, err
		}

		acts = append(acts, act)
	}

	return acts, nil
}

// RequestCancel writes the cancellation marker of an act. Writing it twice is harmless.
func (r *ActRepository) RequestCancel(ctx context.Context, cancellation *models.ActCancellation) error {
	_, err := putJSON(ctx, r.p.store, actCancelKey(cancellation.ActID), cancellation, store.IfNotExists())
	if err != nil && !store.IsConflict(err) {
		return NewRecordError("RequestCancel", "act", cancellation.ActID, err)
	}

	return nil
}

// IsCancelled reports whether a cancellation marker exists for the act.
func (r *ActRepository) IsCancelled(ctx context.Context, actID string) (bool, error) {
	_, err := r.p.store.Get(ctx, actCancelKey(actID))
	if err == nil {
		return true, nil
	}

	if store.IsNotFound(err) {
		return false, nil
	}

	return false, NewRecordError("IsCancelled", "act", actID, err)
}

// Cancellation returns the cancellation marker of an act, if any.
func (r *ActRepository) Cancellation(ctx context.Context, actID string) (*models.ActCancellation, error) {
	cancellation, _, err := getJSON[models.ActCancellation](ctx, r.p.store, actCancelKey(actID))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}

		return nil, NewRecordError("Cancellation", "act", actID, err)
	}

	return cancellation, nil
}
