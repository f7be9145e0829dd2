package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/db"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: seeder [seed.sql ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("schema applied")

	for _, file := range flag.Args() {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Error("failed to read seed file", "file", file, "error", err)
			os.Exit(1)
		}
		if _, err := database.ExecContext(ctx, string(content)); err != nil {
			logger.Error("failed to execute seed file", "file", file, "error", err)
			os.Exit(1)
		}
		logger.Info("seeded", "file", file)
	}
	logger.Info("database seeding completed")
}
