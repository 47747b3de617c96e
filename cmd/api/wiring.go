package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/digistore-backend/api/controllers"
	"github.com/angelmondragon/digistore-backend/api/routes"
	"github.com/angelmondragon/digistore-backend/internal/abandoned"
	"github.com/angelmondragon/digistore-backend/internal/auth"
	"github.com/angelmondragon/digistore-backend/internal/cart"
	"github.com/angelmondragon/digistore-backend/internal/checkout"
	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/internal/downloads"
	"github.com/angelmondragon/digistore-backend/internal/fulfillment"
	"github.com/angelmondragon/digistore-backend/internal/notifications"
	"github.com/angelmondragon/digistore-backend/internal/pages"
	product "github.com/angelmondragon/digistore-backend/internal/products"
	"github.com/angelmondragon/digistore-backend/internal/transactions"
	"github.com/angelmondragon/digistore-backend/internal/users"
	stripewebhook "github.com/angelmondragon/digistore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/github"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/mailer"
	"github.com/angelmondragon/digistore-backend/pkg/metrics"
	"github.com/angelmondragon/digistore-backend/pkg/outbox"
	"github.com/angelmondragon/digistore-backend/pkg/redis"
	"github.com/angelmondragon/digistore-backend/pkg/storage/gcs"
	pkgstripe "github.com/angelmondragon/digistore-backend/pkg/stripe"
)

const webhookGuardScope = "stripe-webhook"

type wiring struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	stripe   *pkgstripe.Client
	gcs      *gcs.Client
	registry prometheus.Registerer
}

// buildDeps constructs every service the router exposes.
func buildDeps(w wiring) (*routes.Deps, error) {
	cfg, logg, gormDB := w.cfg, w.logg, w.db.DB()
	storeMetrics := metrics.NewStoreMetrics(w.registry)

	userRepo := users.NewRepository(gormDB)
	productRepo := product.NewRepository(gormDB)
	transactionRepo := transactions.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	productService, err := product.NewService(productRepo, w.db)
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}

	discountService, err := discounts.NewService(discounts.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("discount service: %w", err)
	}

	cartService, err := cart.NewService(cart.NewRepository(gormDB), w.db, productRepo, discountService, cart.Options{
		IdleWindow: cfg.Cron.AbandonedIdleWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	gateway, err := pkgstripe.NewGateway(w.stripe)
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}
	checkoutService, err := checkout.NewService(checkout.Deps{
		Gateway:      gateway,
		Products:     productRepo,
		Discounts:    discountService,
		Transactions: transactionRepo,
		Coupons:      w.redis,
		Storefront:   cfg.Storefront,
		CouponTTL:    cfg.Checkout.CouponCacheTTL,
		Metrics:      storeMetrics,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	transactionService, err := transactions.NewService(transactionRepo)
	if err != nil {
		return nil, fmt.Errorf("transaction service: %w", err)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(gormDB), w.db, outboxService)
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}

	pageService, err := pages.NewService(pages.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("page service: %w", err)
	}
	renderer := pages.NewRenderer(pages.DefaultRenderers(pages.CatalogGrid{
		Catalog:  productService,
		Products: productRepo,
	}), logg)

	dispatcher, err := fulfillment.NewDispatcher(
		map[enums.ProductType]fulfillment.Fulfiller{
			enums.ProductTypeGitHubRepo: fulfillment.NewGitHubFulfiller(github.NewAccess(cfg.GitHub)),
		},
		fulfillment.NewLedger(gormDB),
		notificationService,
		fulfillment.Options{
			Parallelism: cfg.Fulfillment.Parallelism,
			Metrics:     storeMetrics,
			Logger:      logg,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("fulfillment dispatcher: %w", err)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Transactions:      transactionRepo,
		TransactionRunner: w.db,
		Discounts:         discountService,
		Outbox:            outboxService,
		Products:          productRepo,
		Fulfillment:       dispatcher,
		Notifications:     notificationService,
		Carts:             cartService,
		CreationMode:      cfg.Checkout.TransactionCreation,
		Metrics:           storeMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe webhook service: %w", err)
	}
	guard, err := stripewebhook.NewEventGuard(w.redis, cfg.Eventing.WebhookIdempotencyTTL, webhookGuardScope)
	if err != nil {
		return nil, fmt.Errorf("stripe event guard: %w", err)
	}

	sender, err := mailer.New(cfg.Sendgrid, logg)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	sweeper, err := abandoned.NewSweeper(cartService, userRepo, sender, abandoned.Options{
		BatchSize:  cfg.Cron.AbandonedBatchSize,
		Storefront: cfg.Storefront,
		Metrics:    storeMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("abandoned cart sweeper: %w", err)
	}

	readiness := map[string]controllers.Pinger{
		"db":    w.db,
		"redis": w.redis,
	}

	deps := &routes.Deps{
		Config:    cfg,
		Logger:    logg,
		Redis:     w.redis,
		Readiness: readiness,

		Auth:          authService,
		Products:      productService,
		Cart:          cartService,
		Checkout:      checkoutService,
		Discounts:     discountService,
		Transactions:  transactionService,
		Notifications: notificationService,
		Pages:         pageService,
		PageRenderer:  renderer,
		CartSweeper:   sweeper,

		StripeWebhook:      webhookService,
		StripeSigning:      w.stripe,
		StripeWebhookGuard: guard,
	}

	if w.gcs != nil {
		downloadService, err := downloads.NewService(transactionRepo, productRepo, w.gcs.BucketHandle(cfg.GCS.BucketName), logg)
		if err != nil {
			return nil, fmt.Errorf("download service: %w", err)
		}
		deps.Downloads = downloadService
		readiness["gcs"] = w.gcs
	}

	return deps, nil
}
