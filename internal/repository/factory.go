package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"condo-manager/backend/internal/config"
	"condo-manager/backend/internal/workflow"
)

var (
	_ Repository     = (*PostgresRepository)(nil)
	_ Repository     = (*MemoryRepository)(nil)
	_ workflow.Store = (*PostgresStateStore)(nil)
	_ workflow.Store = (*FileStore)(nil)
	_ workflow.Store = (*RedisStore)(nil)
	_ workflow.Store = (*SQLiteStore)(nil)
	_ workflow.Store = (*S3Store)(nil)
	_ workflow.Store = (*GCSStore)(nil)
)

// NewStateStore opens the workflow state backend named by cfg.Store.Backend.
// pool is only used by the postgres backend. The returned close function
// releases clients the store owns and is never nil.
func NewStateStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (workflow.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store.Backend {
	case config.StoreMemory:
		return workflow.NewMemoryStore(), noop, nil
	case config.StoreFile:
		s, err := NewFileStore(cfg.FileStore.Dir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case config.StorePostgres:
		if pool == nil {
			return nil, noop, errors.New("postgres store requires a database pool")
		}
		return NewPostgresStateStore(pool), noop, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.TTL), client.Close, nil
	case config.StoreSQLite:
		s, err := OpenSQLiteStore(ctx, cfg.SQLite.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.StoreS3:
		s, err := NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case config.StoreGCS:
		s, err := NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
