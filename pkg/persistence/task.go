package persistence

import (
	"context"
	"time"

	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/store"
)

// TaskRepository stores tasks under their act.
type TaskRepository struct {
	p *Persistence
}

type taskLocator struct {
	ActID string `json:"act_id"`
}

// Create writes a new task and its locator. Tasks are created before the
// act that lists them. Creating an existing task rewrites its locator and
// returns ErrAlreadyExists.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	_, err := putJSON(ctx, r.p.store, taskKey(task.ActID, task.ID), task, store.IfNotExists())
	if err != nil && !store.IsConflict(err) {
		return NewRecordError("Create", "task", task.ID, err)
	}

	_, locatorErr := putJSON(ctx, r.p.store, taskLocatorKey(task.ID), taskLocator{ActID: task.ActID})
	if locatorErr != nil {
		return NewRecordError("Create", "task", task.ID, locatorErr)
	}

	if err != nil {
		return NewRecordError("Create", "task", task.ID, ErrAlreadyExists)
	}

	return nil
}

// Get returns a task of an act.
func (r *TaskRepository) Get(ctx context.Context, actID, taskID string) (*models.Task, error) {
	task, _, err := getJSON[models.Task](ctx, r.p.store, taskKey(actID, taskID))
	if err != nil {
		return nil, NewRecordError("Get", "task", taskID, notFoundOr(err, ErrTaskNotFound))
	}

	return task, nil
}

// GetByID returns a task by id alone, resolving its act through the locator index.
func (r *TaskRepository) GetByID(ctx context.Context, taskID string) (*models.Task, error) {
	locator, _, err := getJSON[taskLocator](ctx, r.p.store, taskLocatorKey(taskID))
	if err != nil {
		return nil, NewRecordError("GetByID", "task", taskID, notFoundOr(err, ErrTaskNotFound))
	}

	return r.Get(ctx, locator.ActID, taskID)
}

// Update applies mutate to the stored task with optimistic concurrency.
func (r *TaskRepository) Update(ctx context.Context, actID, taskID string, mutate func(*models.Task) error) (*models.Task, error) {
	task, err := update(ctx, r.p, taskKey(actID, taskID), func(task *models.Task) error {
		err := mutate(task)
		if err == nil {
			task.UpdatedAt = time.Now().UTC()
		}

		return err
	})
	if err != nil {
		return task, NewRecordError("Update", "task", taskID, notFoundOr(err, ErrTaskNotFound))
	}

	return task, nil
}

// ListByAct returns the tasks stored under an act ordered by id.
func (r *TaskRepository) ListByAct(ctx context.Context, actID string) ([]*models.Task, error) {
	ids, err := idsFromIndex(ctx, r.p.store, actTasksPrefix(actID))
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(ids))

	for _, id := range ids {
		task, err := r.Get(ctx, actID, id)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}
