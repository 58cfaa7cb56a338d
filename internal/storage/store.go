package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/botmanager/internal/config"
	"github.com/rickgao/botmanager/internal/database"
)

// ErrUnavailable reports that the backing store could not be reached.
var ErrUnavailable = errors.New("storage unavailable")

// Store is the hash-of-hashes contract every backend satisfies.
//
// Implementations must be safe for concurrent use and give read-your-writes
// consistency within one backing instance. No multi-field transactions are
// assumed.
type Store interface {
	// Set upserts field in bucket.
	Set(ctx context.Context, bucket, field, value string) error

	// GetAll returns the whole bucket. A missing bucket yields an empty map.
	GetAll(ctx context.Context, bucket string) (map[string]string, error)

	// Delete removes field from bucket. Missing fields are not an error.
	Delete(ctx context.Context, bucket, field string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "memory", "":
		logger.Warn("using in-memory storage, state is not shared between processes")
		return NewMemory(), nil
	case "redis":
		logger.Info("connecting to redis")
		return NewRedis(ctx, cfg.Redis)
	case "postgres":
		logger.Info("connecting to postgres",
			"target", database.Describe(cfg.Postgres),
			"table", cfg.Postgres.Table,
		)
		return NewPostgres(ctx, cfg.Postgres)
	case "bolt":
		logger.Info("opening bolt file", "path", cfg.Bolt.Path)
		return NewBolt(cfg.Bolt)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// unavailable wraps a backend failure so callers can test for ErrUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
