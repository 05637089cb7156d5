package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/docstore"
)

// Redis wraps the go-redis client shared by the document store and the token revocation list.
type Redis struct {
	Client    *redis.Client
	keyPrefix string
}

// NewRedis connects to Redis using the provided configuration.
// An unreachable server is logged, not fatal; readiness reports it.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &Redis{Client: client, keyPrefix: cfg.KeyPrefix}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// DocumentStore exposes the client as a document store.
func (r *Redis) DocumentStore(reconcile time.Duration, logger *zap.Logger) *docstore.RedisStore {
	return docstore.NewRedisStore(r.Client,
		docstore.WithKeyPrefix(r.keyPrefix),
		docstore.WithReconcileInterval(reconcile),
		docstore.WithRedisLogger(logger),
	)
}

// KeyPrefix returns the namespace every key written by this service starts with.
func (r *Redis) KeyPrefix() string {
	return r.keyPrefix
}
