// Package backend wires the configured store and event transport.
package backend

import (
	"context"
	"fmt"

	"github.com/entity-history/backend/internal/config"
	"github.com/entity-history/backend/internal/db"
	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/repositories"
	"github.com/entity-history/backend/internal/store"
	"github.com/entity-history/backend/internal/store/memory"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Backend struct {
	Store      store.Store
	Publisher  events.Publisher
	Subscriber events.Subscriber
	// Redis is nil on the memory backend.
	Redis *redis.Client

	pool *pgxpool.Pool
}

// Open connects the backend selected by cfg.StoreBackend. The postgres
// backend runs pending migrations first when MIGRATIONS_AUTO is set.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Info("using in-memory store")
		bus := events.NewLocalBus()
		return &Backend{Store: memory.NewSeeded(), Publisher: bus, Subscriber: bus}, nil
	case config.BackendPostgres:
		return openPostgres(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	if cfg.MigrationsAuto {
		if err := db.RunMigrations(cfg.PostgresDSN, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:         int32(cfg.DBMaxConns),
		StatementTimeout: cfg.DBStatementTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Backend{
		Store:      repositories.NewStore(pool, cfg.TxMaxRetries, log),
		Publisher:  events.NewRedisPublisher(rdb, log),
		Subscriber: events.NewRedisSubscriber(rdb, log),
		Redis:      rdb,
		pool:       pool,
	}, nil
}

// Health pings postgres and redis when present.
func (b *Backend) Health(ctx context.Context) error {
	if b.pool != nil {
		if err := b.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *Backend) Close() {
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
