package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/tablyhq/tably-backend/internal/actionqueue"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "posagent"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "posagent",
		Level:       logger.ParseLevel(cfg.LogLevel),
		WarnStack:   cfg.LogWarnStack,
	})

	store, err := actionqueue.OpenStore(cfg.Queue.StorePath)
	if err != nil {
		logg.Error(context.Background(), "failed to open queue store", err)
		os.Exit(1)
	}

	client, err := actionqueue.NewClient(cfg.Queue)
	if err != nil {
		logg.Error(context.Background(), "failed to build api client", err)
		os.Exit(1)
	}

	queue, err := actionqueue.NewQueue(store, client, logg, actionqueue.Options{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		SyncInterval: cfg.Queue.SyncInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create action queue", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.Env})
	logg.Info(ctx, "starting posagent")

	queue.TriggerSync()
	if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "posagent stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "posagent shutting down gracefully")
}
