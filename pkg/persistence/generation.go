package persistence

import (
	"context"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/store"
)

// GenerationRepository stores generations and the per-task generation index.
type GenerationRepository struct {
	p *Persistence
}

// Create writes a new generation, then indexes it under its task. The index
// entry is written again when the generation already exists, so a create
// interrupted between the two writes is completed by the next attempt.
func (r *GenerationRepository) Create(ctx context.Context, generation *models.Generation) error {
	_, err := putJSON(ctx, r.p.store, generationKey(generation.ID), generation, store.IfNotExists())
	if err != nil && !store.IsConflict(err) {
		return NewRecordError("Create", "generation", generation.ID, err)
	}

	indexErr := markIndex(ctx, r.p.store, taskGenerationsPrefix(generation.TaskID)+generation.ID)
	if indexErr != nil {
		return NewRecordError("Create", "generation", generation.ID, indexErr)
	}

	if err != nil {
		return NewRecordError("Create", "generation", generation.ID, ErrAlreadyExists)
	}

	return nil
}

// GetByID returns the generation with the given id.
func (r *GenerationRepository) GetByID(ctx context.Context, generationID string) (*models.Generation, error) {
	generation, _, err := getJSON[models.Generation](ctx, r.p.store, generationKey(generationID))
	if err != nil {
		return nil, NewRecordError("GetByID", "generation", generationID, notFoundOr(err, ErrGenerationNotFound))
	}

	return generation, nil
}

// Update applies mutate to the stored generation with optimistic concurrency.
func (r *GenerationRepository) Update(ctx context.Context, generationID string, mutate func(*models.Generation) error) (*models.Generation, error) {
	generation, err := update(ctx, r.p, generationKey(generationID), func(generation *models.Generation) error {
		err := mutate(generation)
		if err == nil {
			generation.UpdatedAt = time.Now().UTC()
		}

		return err
	})
	if err != nil {
		return generation, NewRecordError("Update", "generation", generationID, notFoundOr(err, ErrGenerationNotFound))
	}

	return generation, nil
}

// ListByTask returns the generations indexed under a task ordered by id.
func (r *GenerationRepository) ListByTask(ctx context.Context, taskID string) ([]*models.Generation, error) {
	ids, err := idsFromIndex(ctx, r.p.store, taskGenerationsPrefix(taskID))
	if err != nil {
		return nil, err
	}

	generations := make([]*models.Generation, 0, len(ids))

	for _, id := range ids {
		generation, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		generations = append(generations, generation)
	}

	return generations, nil
}
