package main

import (
	"context"
	"errors"
	"net/http"
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

	a := app.New(cfg, database, q)

	// Without a broker nothing else can consume, so evaluate in-process.
	if mem, ok := q.(*queue.InMemoryQueue); ok {
		if err := mem.Subscribe(queue.TopicAgentTasks, a.Worker(2*time.Minute).Handle); err != nil {
			logger.Error("failed to subscribe in-process worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server running", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}
