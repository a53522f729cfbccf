// Package postgresql provides a PostgreSQL-backed blob store.
//
// PostgreSQL is used purely as a key/value table: one row per key, no
// per-entity schema and no foreign keys.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/actflow/pkg/store"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Store implements store.Store on a PostgreSQL table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to databaseURL and runs migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql_store")

	err = NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, key string) (*store.Object, error) {
	var (
		value []byte
		etag  string
	)

	err := s.db.QueryRowContext(ctx, `SELECT value, etag FROM blobs WHERE key = $1`, key).Scan(&value, &etag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewKeyError("get", key, store.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return &store.Object{Key: key, Value: value, ETag: store.ETag(etag)}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, opts ...store.PutOption) (store.ETag, error) {
	err := store.ValidateKey(key)
	if err != nil {
		return "", store.NewKeyError("put", key, err)
	}

	options := store.ApplyPutOptions(opts...)
	etag := store.ComputeETag(value)

	var result sql.Result

	switch {
	case options.IfNotExists:
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO blobs (key, value, etag)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING
		`, key, value, string(etag))
	case options.IfMatch != "":
		result, err = s.db.ExecContext(ctx, `
			UPDATE blobs
			SET value = $2, etag = $3, updated_at = NOW()
			WHERE key = $1 AND etag = $4
		`, key, value, string(etag), string(options.IfMatch))
	default:
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO blobs (key, value, etag)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, etag = EXCLUDED.etag, updated_at = NOW()
		`, key, value, string(etag))
	}

	if err != nil {
		return "", fmt.Errorf("failed to put %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read affected rows for %s: %w", key, err)
	}

	if affected == 0 {
		return "", store.NewKeyError("put", key, store.ErrConflict)
	}

	return etag, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM blobs WHERE key LIKE $1 ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	keys := make([]string, 0)

	for rows.Next() {
		var key string

		err := rows.Scan(&key)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}

		keys = append(keys, key)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}

	sort.Strings(keys)

	return keys, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func escapeLike(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return replacer.Replace(prefix)
}
