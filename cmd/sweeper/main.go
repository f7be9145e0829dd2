package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/app"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/db"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Queue.AMQPURL == "" {
		logger.Error("AMQP_URL is required: the sweeper publishes to workers in other processes")
		os.Exit(1)
	}
	q, closeQueue, err := app.OpenQueue(cfg.Queue)
	if err != nil {
		logger.Error("failed to open queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()

	rdb, err := app.OpenRedis(cfg.Sweeper.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Info("REDIS_URL not set, using PostgreSQL advisory lock")
	}

	logger.Info("sweeper running", "interval", cfg.Sweeper.Interval.String(), "stale_after", cfg.Sweeper.StaleAfter.String())
	app.New(cfg, database, q).Sweeper(rdb).Start(ctx, cfg.Sweeper.Interval)
	logger.Info("sweeper stopped")
}
