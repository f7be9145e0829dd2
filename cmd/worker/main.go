package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/app"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/db"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
)

// invocationTimeout bounds one task evaluation, provider call included.
const invocationTimeout = 2 * time.Minute

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

	q, closeQueue, err := app.OpenQueue(cfg.Queue)
	if err != nil {
		logger.Error("failed to open queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()

	if err := run(ctx, q, app.New(cfg, database, q)); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, q queue.Queue, a *app.App) error {
	if err := q.Subscribe(queue.TopicAgentTasks, a.Worker(invocationTimeout).Handle); err != nil {
		return err
	}
	logger.Info("worker running, waiting for task invocations", "topic", queue.TopicAgentTasks)
	<-ctx.Done()
	logger.Info("shutting down worker")
	return nil
}
