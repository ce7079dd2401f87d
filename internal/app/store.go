package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-accounts/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/db"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

// Store is the account repository selected by STORE_DRIVER together with
// the hooks needed to probe and release it.
type Store struct {
	Repository users.Repository
	Ping       func(ctx context.Context) error
	Close      func()
}

// OpenStore connects the configured backend. Postgres schemas are migrated
// when PG_MIGRATE is set.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case StoreMemory:
		logger.Warn("using in-memory account store; data is lost on restart")
		return &Store{
			Repository: users.NewMemoryRepository(),
			Ping:       func(context.Context) error { return nil },
			Close:      func() {},
		}, nil

	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		if cfg.PGMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		return &Store{
			Repository: users.NewPostgresRepository(pool),
			Ping:       pool.Ping,
			Close:      pool.Close,
		}, nil

	case StoreRedis:
		client, err := cache.New(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return &Store{
			Repository: users.NewRedisRepository(client),
			Ping:       func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}
