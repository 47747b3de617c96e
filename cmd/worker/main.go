package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/digistore-backend/internal/analytics/router"
	"github.com/angelmondragon/digistore-backend/internal/analytics/types"
	analyticsworker "github.com/angelmondragon/digistore-backend/internal/analytics/worker"
	"github.com/angelmondragon/digistore-backend/internal/analytics/writer"
	"github.com/angelmondragon/digistore-backend/internal/notifications"
	"github.com/angelmondragon/digistore-backend/internal/users"
	"github.com/angelmondragon/digistore-backend/pkg/bigquery"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/instance"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/mailer"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/consumer"
	"github.com/angelmondragon/digistore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/digistore-backend/pkg/pubsub"
	"github.com/angelmondragon/digistore-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, db.Options{UseSQLite: cfg.FeatureFlags.UseSQLite}, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, pubsub.SubscriptionNeeds(cfg.PubSub)...)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, types.SalesTableSpec(cfg.BigQuery.SalesTable))
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery", err)
		}
	}()

	claims, err := idempotency.NewLedger(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency ledger", err)

	notificationSub, err := pubsubClient.Subscriber(cfg.PubSub.NotificationSubscription)
	requireResource(ctx, logg, "notification subscription", err)
	analyticsSub, err := pubsubClient.Subscriber(cfg.PubSub.AnalyticsSubscription)
	requireResource(ctx, logg, "analytics subscription", err)

	sender, err := mailer.New(cfg.Sendgrid, logg)
	requireResource(ctx, logg, "mailer", err)

	relay, err := notifications.NewEmailRelay(notifications.RelayParams{
		Users:         users.NewRepository(dbClient.DB()),
		Sender:        sender,
		Subscription:  consumer.Options{Subscription: notificationSub, Claims: claims},
		StorefrontURL: cfg.Storefront.BaseURL,
		Logger:        logg,
	})
	requireResource(ctx, logg, "notification email relay", err)

	salesWriter, err := writer.New(bqClient, writer.Config{SalesTable: cfg.BigQuery.SalesTable, Logger: logg})
	requireResource(ctx, logg, "sales writer", err)

	salesRouter, err := router.NewRouter(salesWriter, logg, nil)
	requireResource(ctx, logg, "sales router", err)

	analytics, err := analyticsworker.NewService(consumer.Options{Subscription: analyticsSub, Claims: claims}, salesRouter, logg)
	requireResource(ctx, logg, "sales analytics consumer", err)

	service, err := NewService(ServiceParams{
		Logger: logg,
		Consumers: map[string]Consumer{
			relay.Name():     relay,
			analytics.Name(): analytics,
		},
		Readiness: map[string]pinger{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
			"bigquery": bqClient.Ping,
		},
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID("worker-0"),
	})
	logg.Info(runCtx, "starting worker")
	go func() {
		if err := metrics.Serve(runCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(runCtx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
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
