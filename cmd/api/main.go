package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tablyhq/tably-backend/api/routes"
	"github.com/tablyhq/tably-backend/internal/bills"
	"github.com/tablyhq/tably-backend/internal/orders"
	"github.com/tablyhq/tably-backend/internal/payments"
	"github.com/tablyhq/tably-backend/internal/revenueshare"
	gatewaywebhook "github.com/tablyhq/tably-backend/internal/webhooks/gateway"
	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/metrics"
	"github.com/tablyhq/tably-backend/pkg/migrate"
	"github.com/tablyhq/tably-backend/pkg/outbox"
	"github.com/tablyhq/tably-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, orders.Options{
		IdempotencyRecordTTL: cfg.Idempotency.RecordTTL,
		FallbackDedupWindow:  cfg.Idempotency.FallbackWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	billsSvc, err := bills.NewService(bills.NewRepository(dbClient.DB()), dbClient, outboxSvc, ordersSvc, bills.Options{
		BalanceEpsilonCents: cfg.Billing.BalanceEpsilonCents,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bills service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(payments.NewRepository(dbClient.DB()), dbClient, billsSvc, payments.Options{
		BalanceEpsilonCents: cfg.Billing.BalanceEpsilonCents,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	sharesSvc, err := revenueshare.NewService(revenueshare.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create revenue share service", err)
		os.Exit(1)
	}

	webhookSvc, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Repo:              gatewaywebhook.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		RevenueShares:     sharesSvc,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := gatewaywebhook.NewDeliveryGuard(redisClient, cfg.Gateway.WebhookGuardTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Orders:         ordersSvc,
			Bills:          billsSvc,
			Payments:       paymentsSvc,
			Webhooks:       webhookSvc,
			WebhookGuard:   webhookGuard,
			WebhookMetrics: metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
