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
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/digistore-backend/internal/abandoned"
	"github.com/angelmondragon/digistore-backend/internal/cart"
	"github.com/angelmondragon/digistore-backend/internal/cron"
	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/internal/notifications"
	product "github.com/angelmondragon/digistore-backend/internal/products"
	"github.com/angelmondragon/digistore-backend/internal/users"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/instance"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/mailer"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
	"github.com/angelmondragon/digistore-backend/pkg/migrate"
	"github.com/angelmondragon/digistore-backend/pkg/outbox"
	"github.com/angelmondragon/digistore-backend/pkg/redis"
)

const (
	serviceKind    = "cron-worker"
	lockNameFormat = "cron-worker:%s"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker exited", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run owns every client for the life of the process; they close when it
// returns.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, db.Options{UseSQLite: cfg.FeatureFlags.UseSQLite}, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer logClose(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer logClose(logg, "redis", redisClient.Close)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	registry := cron.NewRegistry(jobs...)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.ID("cron-0"),
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logClose(logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+what, err)
	}
}

// buildJobs wires the abandoned-cart sweep and the retention purges.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	gormDB := dbClient.DB()
	storeMetrics := metrics.NewStoreMetrics(prometheus.DefaultRegisterer)

	discountService, err := discounts.NewService(discounts.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("discount service: %w", err)
	}
	cartService, err := cart.NewService(cart.NewRepository(gormDB), dbClient, product.NewRepository(gormDB), discountService, cart.Options{
		IdleWindow: cfg.Cron.AbandonedIdleWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	sender, err := mailer.New(cfg.Sendgrid, logg)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	sweeper, err := abandoned.NewSweeper(cartService, users.NewRepository(gormDB), sender, abandoned.Options{
		BatchSize:  cfg.Cron.AbandonedBatchSize,
		Storefront: cfg.Storefront,
		Metrics:    storeMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("abandoned cart sweeper: %w", err)
	}

	abandonedJob, err := cron.NewAbandonedCartJob(sweeper)
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationRetentionJob(notifications.NewRepository(gormDB), cfg.Cron.NotificationRetention, logg)
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(outbox.NewRepository(gormDB), cfg.Cron.OutboxRetention, logg)
	if err != nil {
		return nil, err
	}
	return []cron.Job{abandonedJob, notificationJob, outboxJob}, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
