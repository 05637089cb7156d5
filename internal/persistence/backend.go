package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/docstore"
)

// Backend is the opened document store together with the clients behind it.
type Backend struct {
	Name     string
	Store    docstore.Store
	Postgres *Postgres
	Redis    *Redis
	Mongo    *Mongo
}

// Open connects the configured store backend. Postgres migrations run here when enabled.
// A Redis client is also opened when Redis is configured for another backend.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{Name: cfg.Store.Backend}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		b.Store = docstore.NewMemoryStore()
		logger.Warn("using in-memory document store; data is lost on restart")
	case config.BackendPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if _, err := RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		b.Store = pg.DocumentStore(logger)
	case config.BackendRedis:
		b.Redis = NewRedis(cfg.Redis, logger)
		b.Store = b.Redis.DocumentStore(cfg.Directory.ReconcileInterval(), logger)
	case config.BackendMongo:
		m, err := NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.Mongo = m
		b.Store = m.DocumentStore(logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if b.Redis == nil && cfg.Redis.Enabled {
		b.Redis = NewRedis(cfg.Redis, logger)
	}
	return b, nil
}

// Close releases the store and every client in reverse order of opening.
func (b *Backend) Close(ctx context.Context) {
	if b == nil {
		return
	}
	if b.Store != nil {
		_ = b.Store.Close()
	}
	b.Redis.Close()
	b.Postgres.Close()
	b.Mongo.Close(ctx)
}
