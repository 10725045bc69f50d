package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/tablyhq/tably-backend/internal/bills"
	"github.com/tablyhq/tably-backend/internal/consumers/effects"
	"github.com/tablyhq/tably-backend/internal/consumers/worker"
	"github.com/tablyhq/tably-backend/internal/orders"
	"github.com/tablyhq/tably-backend/internal/revenueshare"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/migrate"
	"github.com/tablyhq/tably-backend/pkg/outbox"
	"github.com/tablyhq/tably-backend/pkg/outbox/idempotency"
	"github.com/tablyhq/tably-backend/pkg/pubsub"
	"github.com/tablyhq/tably-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	subscription := pubsubClient.DomainSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "domain subscription", errors.New("subscription not configured"))
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, orders.Options{
		IdempotencyRecordTTL: cfg.Idempotency.RecordTTL,
		FallbackDedupWindow:  cfg.Idempotency.FallbackWindow,
	})
	requireResource(ctx, logg, "orders service", err)

	billsRepo := bills.NewRepository(dbClient.DB())
	billsSvc, err := bills.NewService(billsRepo, dbClient, outboxSvc, ordersSvc, bills.Options{
		BalanceEpsilonCents: cfg.Billing.BalanceEpsilonCents,
	})
	requireResource(ctx, logg, "bills service", err)

	sharesSvc, err := revenueshare.NewService(revenueshare.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "revenue share service", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Idempotency.ResponseTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := effects.NewConsumer(billsSvc, sharesSvc, billsRepo, manager, logg)
	requireResource(ctx, logg, "effects consumer", err)

	service, err := worker.NewService(subscription, consumer, logg)
	requireResource(ctx, logg, "consumer worker", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env})
	logg.Info(runCtx, "worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker failed", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
