package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// OpenOptions selects the backing store. PostgresURL wins over SQLitePath;
// with neither set the store lives in memory. RedisURL adds a read-through
// cache in front of a persistent store.
type OpenOptions struct {
	PostgresURL string
	SQLitePath  string
	RedisURL    string
	RedisTTL    time.Duration
}

// Open builds the configured store. The returned func releases every
// connection Open made.
func Open(ctx context.Context, opts OpenOptions) (Store, func(), error) {
	var st Store
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	switch {
	case opts.PostgresURL != "":
		pool, err := pgxpool.New(ctx, opts.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	case opts.SQLitePath != "":
		lite, err := NewSQLiteStore(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("opened SQLite store", "path", opts.SQLitePath)

	default:
		if opts.RedisURL != "" {
			return nil, nil, fmt.Errorf("redis cache needs a persistent store")
		}
		slog.Warn("no database configured, using in-memory store (data will not persist)")
		return NewMemoryStore(), func() {}, nil
	}

	// Wrap with Redis read-through cache if configured.
	if opts.RedisURL != "" {
		opt, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = NewCachedStore(st, rdb, opts.RedisTTL)
		slog.Info("Redis cache enabled", "ttl", opts.RedisTTL)
	}
	return st, closeAll, nil
}
