package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/actflow/pkg/store"
	"github.com/dukex/actflow/pkg/store/file"
	"github.com/dukex/actflow/pkg/store/memory"
	"github.com/dukex/actflow/pkg/store/postgresql"
	"github.com/dukex/actflow/pkg/store/redis"
)

var ErrUnsupportedStore = errors.New("unsupported store")

// NewStore opens the blob store named by databaseURL's scheme:
// memory://, file://path, redis://... or postgres://...
// nolint:ireturn // the concrete store depends on the URL
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedStore, databaseURL)
	}

	switch scheme {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return file.NewStore(databaseURL), nil
	case "redis", "rediss":
		return redis.NewStore(ctx, logger, databaseURL)
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, scheme)
	}
}
