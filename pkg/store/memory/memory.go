// Package memory provides an in-process store for tests and single-process development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/actflow/pkg/store"
)

type entry struct {
	value []byte
	etag  store.ETag
}

// Store keeps every object in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]entry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{objects: make(map[string]entry)}
}

func (s *Store) Get(_ context.Context, key string) (*store.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current, ok := s.objects[key]
	if !ok {
		return nil, store.NewKeyError("get", key, store.ErrNotFound)
	}

	value := make([]byte, len(current.value))
	copy(value, current.value)

	return &store.Object{Key: key, Value: value, ETag: current.etag}, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, opts ...store.PutOption) (store.ETag, error) {
	err := store.ValidateKey(key)
	if err != nil {
		return "", store.NewKeyError("put", key, err)
	}

	options := store.ApplyPutOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.objects[key]

	err = options.Check(current.etag, exists)
	if err != nil {
		return "", store.NewKeyError("put", key, err)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	etag := store.ComputeETag(stored)
	s.objects[key] = entry{value: stored, etag: etag}

	return etag, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)

	return nil
}

func (s *Store) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)

	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}
