// Package persistence provides typed repositories for workspaces, acts, tasks,
// generations and triggers on top of a key/value blob store.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/dukex/actflow/pkg/store"
)

const defaultConflictRetries = 5

// Persistence groups the repositories sharing one store.
type Persistence struct {
	store           store.Store
	logger          *slog.Logger
	conflictRetries int

	workspaces  *WorkspaceRepository
	acts        *ActRepository
	tasks       *TaskRepository
	generations *GenerationRepository
	triggers    *TriggerRepository
}

type Option func(*Persistence)

// WithConflictRetries bounds how many times an optimistic update is retried after a conflict.
func WithConflictRetries(retries int) Option {
	return func(p *Persistence) {
		if retries >= 0 {
			p.conflictRetries = retries
		}
	}
}

// New creates the repositories over s.
func New(s store.Store, logger *slog.Logger, opts ...Option) *Persistence {
	p := &Persistence{
		store:           s,
		logger:          logger.With("module", "persistence"),
		conflictRetries: defaultConflictRetries,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.workspaces = &WorkspaceRepository{p: p}
	p.acts = &ActRepository{p: p}
	p.tasks = &TaskRepository{p: p}
	p.generations = &GenerationRepository{p: p}
	p.triggers = &TriggerRepository{p: p}

	return p
}

func (p *Persistence) Workspaces() *WorkspaceRepository { return p.workspaces }
func (p *Persistence) Acts() *ActRepository { return p.acts }
func (p *Persistence) Tasks() *TaskRepository { return p.tasks }
func (p *Persistence) Generations() *GenerationRepository { return p.generations }
func (p *Persistence) Triggers() *TriggerRepository { return p.triggers }

// HealthCheck checks the underlying store.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.store.HealthCheck(ctx)
}

// Close releases the underlying store.
func (p *Persistence) Close(ctx context.Context) error {
	return p.store.Close(ctx)
}

func getJSON[T any](ctx context.Context, s store.Store, key string) (*T, store.ETag, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}

	var value T

	err = json.Unmarshal(obj.Value, &value)
	if err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return &value, obj.ETag, nil
}

func putJSON(ctx context.Context, s store.Store, key string, value any, opts ...store.PutOption) (store.ETag, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return s.Put(ctx, key, data, opts...)
}

// update performs a read-modify-write of key guarded by the read etag.
// mutate is re-run against the fresh record after every lost race, so it
// must re-check its pre-state each time. Returning ErrSkipWrite from mutate
// returns the current record without writing.
func update[T any](ctx context.Context, p *Persistence, key string, mutate func(*T) error) (*T, error) {
	for attempt := 0; ; attempt++ {
		current, etag, err := getJSON[T](ctx, p.store, key)
		if err != nil {
			return nil, err
		}

		err = mutate(current)
		if errors.Is(err, ErrSkipWrite) {
			return current, nil
		}

		if err != nil {
			return current, err
		}

		_, err = putJSON(ctx, p.store, key, current, store.IfMatch(etag))
		if err == nil {
			return current, nil
		}

		if !store.IsConflict(err) {
			return nil, err
		}

		if attempt >= p.conflictRetries {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrStoreConflict, key, attempt+1)
		}

		p.logger.DebugContext(ctx, "Optimistic update conflict, retrying", "key", key, "attempt", attempt+1)
	}
}

// markIndex writes an empty secondary index entry.
func markIndex(ctx context.Context, s store.Store, key string) error {
	_, err := s.Put(ctx, key, []byte("{}"))

	return err
}

// idsFromIndex lists the ids stored as the last path segment under prefix.
func idsFromIndex(ctx context.Context, s store.Store, prefix string) ([]string, error) {
	keys, err := s.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))

	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if strings.Contains(rest, "/") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(path.Base(rest), ".json"))
	}

	return ids, nil
}

func notFoundOr(err error, notFound error) error {
	if store.IsNotFound(err) {
		return notFound
	}

	return err
}
