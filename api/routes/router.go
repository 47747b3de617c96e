package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/digistore-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/digistore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/digistore-backend/api/middleware"
	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/internal/auth"
	"github.com/angelmondragon/digistore-backend/internal/cart"
	"github.com/angelmondragon/digistore-backend/internal/checkout"
	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/internal/notifications"
	"github.com/angelmondragon/digistore-backend/internal/pages"
	product "github.com/angelmondragon/digistore-backend/internal/products"
	"github.com/angelmondragon/digistore-backend/internal/transactions"
	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// RedisStore backs idempotency keys and rate-limit counters.
type RedisStore interface {
	middleware.ReplayStore
	middleware.CounterStore
}

// Deps carries everything the router wires into controllers. Nil services
// answer 500 from their controllers instead of panicking.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Redis     RedisStore
	Readiness map[string]controllers.Pinger
	Metrics   http.Handler

	Auth          auth.Service
	Products      product.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Discounts     discounts.Service
	Transactions  transactions.Service
	Notifications notifications.Service
	Pages         pages.Service
	PageRenderer  controllers.PageRenderer
	Downloads     controllers.DownloadOpener
	CartSweeper   controllers.CartSweeper

	StripeWebhook      webhookcontrollers.StripeWebhookService
	StripeSigning      webhookcontrollers.SigningSecretSource
	StripeWebhookGuard webhookcontrollers.EventGuard
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Storefront.BaseURL),
	)

	limits := cfg.AuthRateLimit
	loginPolicy := middleware.ThrottlePolicy{
		Name:   "login",
		Window: limits.LoginWindow,
		Limits: []middleware.Limit{middleware.PerIP(limits.LoginIPLimit), middleware.PerEmail(limits.LoginEmailLimit)},
	}
	registerPolicy := middleware.ThrottlePolicy{
		Name:   "register",
		Window: limits.RegisterWindow,
		Limits: []middleware.Limit{middleware.PerIP(limits.RegisterIPLimit), middleware.PerEmail(limits.RegisterEmailLimit)},
	}
	discountPolicy := middleware.ThrottlePolicy{
		Name:   "discount",
		Window: limits.DiscountWindow,
		Limits: []middleware.Limit{middleware.PerIP(limits.DiscountIPLimit)},
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Readiness))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Get("/api/public/ping", controllers.Ping("public"))

	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhook, d.StripeSigning, d.StripeWebhookGuard, logg))
	r.Post("/api/cron/abandoned-carts", controllers.AbandonedCartSweep(d.CartSweeper, cfg.Cron.Secret, logg))

	r.With(middleware.OptionalAuth(cfg.JWT, logg)).Get("/pages/{slug}", controllers.RenderPage(d.Pages, d.PageRenderer, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.Throttle(loginPolicy, d.Redis, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
			r.With(middleware.Throttle(registerPolicy, d.Redis, logg)).Post("/register", controllers.AuthRegister(d.Auth, logg))
		})

		// Catalog, pages and checkout are open to guests.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Get("/products", controllers.ListProducts(d.Products, logg))
			r.Get("/products/{slug}", controllers.GetProduct(d.Products, logg))
			r.Get("/categories", controllers.ListCategories(d.Products, logg))
			r.Get("/technologies", controllers.ListTechnologies(d.Products, logg))
			r.Get("/pages", controllers.ListPages(d.Pages, logg))
			r.Get("/pages/{slug}", controllers.GetPage(d.Pages, logg))
			r.With(middleware.Throttle(discountPolicy, d.Redis, logg)).Post("/discounts/validate", controllers.ValidateDiscount(d.Discounts, logg))
			r.Post("/checkout/session", controllers.CheckoutSession(d.Checkout, d.Auth, logg))
			r.Get("/checkout/success", controllers.CheckoutSuccess(d.Checkout, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/me", controllers.Me(d.Auth, logg))
			r.Patch("/me", controllers.UpdateMe(d.Auth, logg))

			// Seller catalog management; ownership is enforced by the product service.
			r.Route("/seller/products", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleSeller, enums.RoleAdmin))
				r.Get("/", controllers.ListOwnProducts(d.Products, logg))
				r.With(middleware.Authorize(access.Products, access.Create, logg)).Post("/", controllers.CreateProduct(d.Products, logg))
				r.With(middleware.Authorize(access.Products, access.Delete, logg)).Delete("/{productId}", controllers.DeleteProduct(d.Products, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.Authorize(access.Products, access.Update, logg))
					r.Patch("/{productId}", controllers.UpdateProduct(d.Products, logg))
					r.Post("/{productId}/files", controllers.AddProductFile(d.Products, logg))
					r.Delete("/{productId}/files/{fileId}", controllers.RemoveProductFile(d.Products, logg))
				})
			})

			r.Route("/cart", func(r chi.Router) {
				r.Use(middleware.Authorize(access.Carts, access.Read, logg))
				r.Get("/", controllers.CartFetch(d.Cart, logg))
				r.Put("/", controllers.CartReplace(d.Cart, logg))
				r.Delete("/", controllers.CartClear(d.Cart, logg))
				r.Post("/summary", controllers.CartSummary(d.Cart, logg))
				r.Post("/items", controllers.CartAddItem(d.Cart, logg))
				r.Patch("/items/{productId}", controllers.CartUpdateItem(d.Cart, logg))
				r.Delete("/items/{productId}", controllers.CartRemoveItem(d.Cart, logg))
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Use(middleware.Authorize(access.Transactions, access.Read, logg))
				r.Get("/", controllers.ListTransactions(d.Transactions, logg))
				r.Get("/{transactionId}", controllers.GetTransaction(d.Transactions, logg))
			})
			r.With(middleware.RequireRole(logg, enums.RoleSeller, enums.RoleAdmin)).Get("/earnings", controllers.ListEarnings(d.Transactions, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(d.Notifications, logg))
				r.Get("/unread-count", controllers.UnreadNotificationCount(d.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
			})

			r.Get("/downloads/{productId}", controllers.Download(d.Downloads, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Get("/ping", controllers.Ping("admin"))

		r.Route("/discount-codes", func(r chi.Router) {
			r.Get("/", controllers.AdminListDiscounts(d.Discounts, logg))
			r.Post("/", controllers.AdminCreateDiscount(d.Discounts, logg))
			r.Get("/{discountId}", controllers.AdminGetDiscount(d.Discounts, logg))
			r.Put("/{discountId}", controllers.AdminUpdateDiscount(d.Discounts, logg))
			r.Delete("/{discountId}", controllers.AdminDeleteDiscount(d.Discounts, logg))
		})

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", controllers.ListPages(d.Pages, logg))
			r.Post("/", controllers.AdminCreatePage(d.Pages, logg))
			r.Put("/{pageId}", controllers.AdminUpdatePage(d.Pages, logg))
			r.Delete("/{pageId}", controllers.AdminDeletePage(d.Pages, logg))
		})

		r.Post("/categories", controllers.CreateCategory(d.Products, logg))
		r.Post("/technologies", controllers.CreateTechnology(d.Products, logg))
		r.Get("/transactions", controllers.ListTransactions(d.Transactions, logg))
	})

	return r
}
