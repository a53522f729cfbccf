// Package redis provides a Redis-backed blob store using optimistic WATCH transactions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/actflow/pkg/store"
	redis "github.com/redis/go-redis/v9"
)

const (
	fieldValue = "v"
	fieldETag  = "e"

	defaultNamespace = "actflow"
	scanCount        = 500
)

// Store keeps each key as a Redis hash holding the value and its etag.
type Store struct {
	client    redis.UniversalClient
	namespace string
	logger    *slog.Logger
}

// NewStore creates a store from a redis:// URL.
func NewStore(ctx context.Context, logger *slog.Logger, url string) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewStoreWithClient(client, defaultNamespace, logger), nil
}

// NewStoreWithClient wraps an existing client. Every key is stored under namespace.
func NewStoreWithClient(client redis.UniversalClient, namespace string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
		logger:    logger.With("module", "redis_store"),
	}
}

func (s *Store) redisKey(key string) string {
	return s.namespace + ":" + key
}

func (s *Store) Get(ctx context.Context, key string) (*store.Object, error) {
	return s.get(ctx, s.client, key)
}

func (s *Store) get(ctx context.Context, client redis.Cmdable, key string) (*store.Object, error) {
	values, err := client.HMGet(ctx, s.redisKey(key), fieldValue, fieldETag).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	value, ok := values[0].(string)
	if !ok {
		return nil, store.NewKeyError("get", key, store.ErrNotFound)
	}

	etag, _ := values[1].(string)

	return &store.Object{Key: key, Value: []byte(value), ETag: store.ETag(etag)}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, opts ...store.PutOption) (store.ETag, error) {
	err := store.ValidateKey(key)
	if err != nil {
		return "", store.NewKeyError("put", key, err)
	}

	options := store.ApplyPutOptions(opts...)
	etag := store.ComputeETag(value)
	redisKey := s.redisKey(key)

	if !options.IfNotExists && options.IfMatch == "" {
		err = s.client.HSet(ctx, redisKey, fieldValue, value, fieldETag, string(etag)).Err()
		if err != nil {
			return "", fmt.Errorf("failed to put %s: %w", key, err)
		}

		return etag, nil
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, key)
		exists := err == nil

		if err != nil && !store.IsNotFound(err) {
			return err
		}

		var currentETag store.ETag
		if exists {
			currentETag = current.ETag
		}

		err = options.Check(currentETag, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, redisKey, fieldValue, value, fieldETag, string(etag))

			return nil
		})

		return err
	}, redisKey)

	if errors.Is(err, redis.TxFailedErr) || store.IsConflict(err) {
		s.logger.DebugContext(ctx, "Conditional put lost race", "key", key)

		return "", store.NewKeyError("put", key, store.ErrConflict)
	}

	if err != nil {
		return "", fmt.Errorf("failed to put %s: %w", key, err)
	}

	return etag, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.redisKey(key)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.redisKey(prefix)) + "*"
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	trim := s.namespace + ":"

	// SCAN may return a key more than once.
	iter := s.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), trim)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	err := iter.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

func escapeGlob(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

	return replacer.Replace(pattern)
}
