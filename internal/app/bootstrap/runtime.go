package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/hmpv-lab-platform/internal/config"
	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// ErrUnknownBackend is returned for an unrecognised STORAGE_BACKEND value.
var ErrUnknownBackend = errors.New("bootstrap: unknown storage backend")

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool opens a pgx pool when DATABASE_URL is set, or returns nil.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// Storage is the durable key-value backend plus its shutdown hook.
type Storage struct {
	Kind    string
	Backend storage.Backend
	Close   func() error
}

// BuildStorage selects the record backend named by STORAGE_BACKEND. The
// redis and postgres kinds need the matching client from the caller.
func BuildStorage(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() error { return nil }

	kind := strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch kind {
	case "", "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		return &Storage{Kind: "memory", Backend: storage.NewMemoryBackend(), Close: noop}, nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis backend selected but REDIS_ADDR is unset or unreachable")
		}
		return &Storage{Kind: kind, Backend: storage.NewRedisBackend(redisClient, cfg.RedisKeyPrefix), Close: noop}, nil
	case "sqlite":
		backend, err := storage.NewSQLiteBackend(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Storage{Kind: kind, Backend: backend, Close: backend.Close}, nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres backend selected but DATABASE_URL is unset")
		}
		return &Storage{Kind: kind, Backend: storage.NewPostgresBackend(pool), Close: noop}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StorageBackend)
	}
}
