package main

// cmd/worker is the execution engine: it consumes swap jobs from the Redis
// queue, drives each through the quote/build/submit/settle pipeline against
// the simulated venues, and broadcasts every status transition.

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SirClappington/swapd/internal/bus"
	"github.com/SirClappington/swapd/internal/config"
	"github.com/SirClappington/swapd/internal/logging"
	"github.com/SirClappington/swapd/internal/queue"
	"github.com/SirClappington/swapd/internal/scheduler"
	"github.com/SirClappington/swapd/internal/storage"
	"github.com/SirClappington/swapd/internal/venue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Production())
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := storage.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	venues := make([]venue.Venue, 0, 2)
	for _, profile := range venue.DefaultProfiles() {
		venues = append(venues, venue.NewSimulated(profile, cfg.ExecFailureRate))
	}
	agg := venue.NewAggregator(logger, cfg.VenueQuoteTimeout, venues...)

	engine := scheduler.New(
		scheduler.Config{
			Concurrency:     cfg.WorkerConcurrency,
			RateLimitMax:    cfg.RateLimitMax,
			RateLimitWindow: cfg.RateLimitWindow,
			MaxAttempts:     cfg.MaxAttempts,
			BackoffBase:     cfg.BackoffBase,
			BackoffMax:      cfg.BackoffMax,
			BuildDelay:      cfg.BuildDelay,
		},
		queue.NewRedis(rdb),
		bus.NewRedis(rdb, logger),
		storage.New(db),
		agg,
		logger,
	)

	logger.Info("worker starting",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("rate_limit_max", cfg.RateLimitMax),
		zap.Duration("rate_limit_window", cfg.RateLimitWindow),
		zap.Int("max_attempts", cfg.MaxAttempts),
	)
	if err := engine.Run(ctx); err != nil {
		logger.Fatal("engine stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
