package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/pharmacare/go-session"
	"github.com/pharmacare/go-session/internal/config"
	"github.com/pharmacare/go-session/repository"
)

// storeBackend is the shared session store picked by STORE_DRIVER.
type storeBackend struct {
	Store   session.Store
	entries *repository.EntryStore
	closers []func() error
}

func (b *storeBackend) Close() {
	for _, c := range b.closers {
		_ = c()
	}
}

// Purge removes idle SQL entries. Redis expires keys by TTL on its own.
func (b *storeBackend) Purge(ctx context.Context, idle time.Duration) (int64, error) {
	if b.entries == nil {
		return 0, nil
	}
	return b.entries.PurgeIdle(ctx, idle)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*storeBackend, error) {
	switch cfg.Driver {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := repository.NewRedisStore(client, cfg.TTL())
		if err := store.Ping(ctx); err != nil {
			logger.Warn("unable to reach redis", zap.Error(err))
		} else {
			logger.Info("connected to redis")
		}
		return &storeBackend{Store: store, closers: []func() error{client.Close}}, nil

	case config.StoreSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// sqlite serializes writers anyway, and :memory: databases live per connection
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		entries := repository.NewEntryStore(db)
		if err := entries.CreateSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create session schema: %w", err)
		}
		return &storeBackend{Store: entries, entries: entries, closers: []func() error{db.Close}}, nil
	}

	logger.Info("using in-memory session store")
	return &storeBackend{Store: session.NewMemoryStore()}, nil
}
