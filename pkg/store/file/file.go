// Package file provides a filesystem-backed blob store emulating object storage.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/actflow/pkg/store"
)

// Store keeps each key as a file under root. Conditional writes are
// serialized within the process; concurrent processes sharing a root
// only get IfNotExists guarantees.
type Store struct {
	root  string
	locks sync.Map // key -> *sync.Mutex
}

// NewStore creates a new file store rooted at root. A "file://" prefix is accepted.
func NewStore(root string) *Store {
	return &Store{root: strings.Replace(root, "file://", "", 1)}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) lock(key string) func() {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	m, _ := mu.(*sync.Mutex)
	m.Lock()

	return m.Unlock
}

func (s *Store) Get(_ context.Context, key string) (*store.Object, error) {
	err := store.ValidateKey(key)
	if err != nil {
		return nil, store.NewKeyError("get", key, err)
	}

	data, err := os.ReadFile(s.path(key)) // #nosec G304 -- key is validated
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.NewKeyError("get", key, store.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return &store.Object{Key: key, Value: data, ETag: store.ComputeETag(data)}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, opts ...store.PutOption) (store.ETag, error) {
	err := store.ValidateKey(key)
	if err != nil {
		return "", store.NewKeyError("put", key, err)
	}

	options := store.ApplyPutOptions(opts...)

	unlock := s.lock(key)
	defer unlock()

	current, err := s.Get(ctx, key)
	exists := err == nil

	if err != nil && !store.IsNotFound(err) {
		return "", err
	}

	var currentETag store.ETag
	if exists {
		currentETag = current.ETag
	}

	err = options.Check(currentETag, exists)
	if err != nil {
		return "", store.NewKeyError("put", key, err)
	}

	target := s.path(key)

	err = os.MkdirAll(filepath.Dir(target), 0750)
	if err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	_, err = tmp.Write(value)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}

	if options.IfNotExists {
		// Link fails if another process created the key in the meantime.
		err = os.Link(tmpName, target)
		if errors.Is(err, fs.ErrExist) {
			return "", store.NewKeyError("put", key, store.ErrConflict)
		}
	} else {
		err = os.Rename(tmpName, target)
	}

	if err != nil {
		return "", fmt.Errorf("failed to commit %s: %w", key, err)
	}

	return store.ComputeETag(value), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := store.ValidateKey(key)
	if err != nil {
		return store.NewKeyError("delete", key, err)
	}

	unlock := s.lock(key)
	defer unlock()

	err = os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

func (s *Store) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)

	start := s.root
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		start = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}

	err := filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}

	sort.Strings(keys)

	return keys, nil
}

// HealthCheck checks the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For the file store, there is nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}
