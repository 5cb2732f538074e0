package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/observability"
	rhstore "github.com/xraph/resthook/store"
	"github.com/xraph/resthook/store/memory"
	"github.com/xraph/resthook/store/postgres"
	"github.com/xraph/resthook/store/redis"
	"github.com/xraph/resthook/store/sqlite"
)

// openStore connects the configured backend and checks it answers.
func openStore(ctx context.Context, cfg storeConfig) (rhstore.Store, error) {
	var s rhstore.Store

	switch cfg.Driver {
	case "memory", "":
		s = memory.New()
	case "redis":
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("store.redis_url: %w", err)
		}
		s = redis.NewFromClient(goredis.NewClient(opts))
	case "sqlite":
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, err
		}
		s = sqlite.New(db)
	case "postgres", "pg":
		drv := pgdriver.New()
		if err := drv.Open(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, err
		}
		s = postgres.New(db)
	default:
		return nil, fmt.Errorf("store.driver: unknown driver %q", cfg.Driver)
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}

	return s, nil
}

// openRelay opens the store and builds a Relay around it. The caller owns
// the returned store.
func openRelay(ctx context.Context, cfg *daemonConfig, logger *slog.Logger, extra ...resthook.Option) (*resthook.Relay, rhstore.Store, error) {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	opts := append([]resthook.Option{
		resthook.WithStore(s),
		resthook.WithConfig(cfg.Engine),
		resthook.WithLogger(logger),
		resthook.WithTracer(observability.NewTracer()),
	}, extra...)

	r, err := resthook.New(opts...)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	return r, s, nil
}
