package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/chatguessr/internal/config"
	"github.com/playperu/chatguessr/internal/database"
	"github.com/playperu/chatguessr/internal/events"
	"github.com/playperu/chatguessr/internal/game"
	"github.com/playperu/chatguessr/internal/geo"
	eventsws "github.com/playperu/chatguessr/internal/handler/events"
	"github.com/playperu/chatguessr/internal/handler/health"
	"github.com/playperu/chatguessr/internal/migrations"
	"github.com/playperu/chatguessr/internal/seed"
	"github.com/playperu/chatguessr/internal/server"
	"github.com/playperu/chatguessr/internal/settings"
	"github.com/playperu/chatguessr/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	rules, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	// --- Streak codes ---
	regions, err := geo.NewRegionResolver(cfg.RegionsPath)
	if err != nil {
		return fmt.Errorf("loading regions: %w", err)
	}
	var resolver geo.Resolver = regions

	checks := map[string]health.Checker{
		"sqlite": dbChecker{db},
	}

	// --- Redis ---
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		resolver = geo.NewCachedResolver(regions, rdb, cfg.ResolverCacheTTL, logger)
		checks["redis"] = redisChecker{rdb}
	}

	// --- Game ---
	st := store.NewSQLiteStore(db, store.WithBackupDir(cfg.BackupDir))
	seeds := seed.NewClient(cfg.GeoGuessrURL,
		seed.WithSession(cfg.GeoGuessrNCFA),
		seed.WithRetry(cfg.SeedRetries, cfg.SeedRetryDelay),
	)
	broker := events.NewBroker()
	controller := game.New(st, seeds, resolver, broker, rules, cfg.FinalizeConcurrency, logger)

	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, admin routes disabled")
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Game:              controller,
		Store:             st,
		Broker:            broker,
		AdminPasswordHash: cfg.AdminPasswordHash,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
		r.Mount("/ws", eventsws.NewHandler(broker, logger).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		controller.Stop()
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to health.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
