package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Storefront    StorefrontConfig
	Checkout      CheckoutConfig
	Fulfillment   FulfillmentConfig
	Cron          CronConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Stripe        StripeConfig
	Sendgrid      SendgridConfig
	GitHub        GitHubConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if !cfg.Checkout.TransactionCreation.IsValid() {
		return nil, fmt.Errorf("invalid %s %q", EnvCheckoutTransactionCreation, cfg.Checkout.TransactionCreation)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DIGISTORE_APP_ENV" required:"true"`
	Port         string `envconfig:"DIGISTORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DIGISTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DIGISTORE_LOG_WARN_STACK" default:"false"`
	MetricsAddr  string `envconfig:"DIGISTORE_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DIGISTORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DIGISTORE_DB_DSN"`
	Driver string `envconfig:"DIGISTORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DIGISTORE_DB_HOST"`
	LegacyPort     int    `envconfig:"DIGISTORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DIGISTORE_DB_USER"`
	LegacyPassword string `envconfig:"DIGISTORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DIGISTORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DIGISTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DIGISTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DIGISTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DIGISTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DIGISTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"DIGISTORE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DIGISTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DIGISTORE_REDIS_ADDR"`
	Password     string        `envconfig:"DIGISTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DIGISTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DIGISTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DIGISTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIGISTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DIGISTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DIGISTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DIGISTORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DIGISTORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DIGISTORE_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DIGISTORE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DIGISTORE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DIGISTORE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DIGISTORE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DIGISTORE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"DIGISTORE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"DIGISTORE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"DIGISTORE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"DIGISTORE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"DIGISTORE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"DIGISTORE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	DiscountWindow     time.Duration `envconfig:"DIGISTORE_RATE_LIMIT_DISCOUNT_WINDOW" default:"1m"`
	DiscountIPLimit    int           `envconfig:"DIGISTORE_RATE_LIMIT_DISCOUNT_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DIGISTORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DIGISTORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"DIGISTORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"DIGISTORE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type StorefrontConfig struct {
	BaseURL  string `envconfig:"DIGISTORE_STOREFRONT_URL" default:"http://localhost:3000"`
	Currency string `envconfig:"DIGISTORE_STOREFRONT_CURRENCY" default:"usd"`
	Name     string `envconfig:"DIGISTORE_STOREFRONT_NAME" default:"Digistore"`
}

// SuccessURL is the hosted checkout return target; the provider substitutes the session id.
func (s StorefrontConfig) SuccessURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
}

func (s StorefrontConfig) CancelURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/cart"
}

func (s StorefrontConfig) CartURL() string {
	return s.CancelURL()
}

// TransactionCreationMode controls which write paths may insert a transaction row.
type TransactionCreationMode string

const (
	// TransactionCreationSuccessPage lets only the success redirect create rows; the webhook only updates.
	TransactionCreationSuccessPage TransactionCreationMode = "success_page"
	// TransactionCreationBoth lets the webhook create the row when the success page has not.
	TransactionCreationBoth TransactionCreationMode = "both"
)

func (m TransactionCreationMode) IsValid() bool {
	switch m {
	case TransactionCreationSuccessPage, TransactionCreationBoth:
		return true
	default:
		return false
	}
}

type CheckoutConfig struct {
	TransactionCreation TransactionCreationMode `envconfig:"DIGISTORE_CHECKOUT_TRANSACTION_CREATION" default:"success_page"`
	CouponCacheTTL      time.Duration           `envconfig:"DIGISTORE_CHECKOUT_COUPON_CACHE_TTL" default:"720h"`
}

type FulfillmentConfig struct {
	Parallelism int `envconfig:"DIGISTORE_FULFILLMENT_PARALLELISM" default:"1"`
}

type CronConfig struct {
	Secret                string        `envconfig:"DIGISTORE_CRON_SECRET"`
	Interval              time.Duration `envconfig:"DIGISTORE_CRON_INTERVAL" default:"1h"`
	AbandonedBatchSize    int           `envconfig:"DIGISTORE_CRON_ABANDONED_BATCH_SIZE" default:"100"`
	AbandonedIdleWindow   time.Duration `envconfig:"DIGISTORE_CRON_ABANDONED_IDLE_WINDOW" default:"1h"`
	NotificationRetention time.Duration `envconfig:"DIGISTORE_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"DIGISTORE_CRON_OUTBOX_RETENTION" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DIGISTORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DIGISTORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DIGISTORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"DIGISTORE_GCS_BUCKET_NAME"`
	Endpoint   string `envconfig:"DIGISTORE_GCS_ENDPOINT"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"DIGISTORE_PUBSUB_DOMAIN_TOPIC" default:"digistore-domain-events"`
	NotificationSubscription string `envconfig:"DIGISTORE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"digistore-notification-email"`
	AnalyticsSubscription    string `envconfig:"DIGISTORE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"digistore-sales-analytics"`
	MaxOutstandingMessages   int    `envconfig:"DIGISTORE_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type BigQueryConfig struct {
	Dataset    string `envconfig:"DIGISTORE_BIGQUERY_DATASET" default:"digistore"`
	SalesTable string `envconfig:"DIGISTORE_BIGQUERY_SALES_TABLE" default:"sales_events"`
	AutoCreate bool   `envconfig:"DIGISTORE_BIGQUERY_AUTO_CREATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DIGISTORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DIGISTORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DIGISTORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"DIGISTORE_STRIPE_API_KEY"`
	Secret string `envconfig:"DIGISTORE_STRIPE_SECRET"`
	Env    string `envconfig:"DIGISTORE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"DIGISTORE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"DIGISTORE_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"DIGISTORE_SENDGRID_FROM_NAME" default:"Digistore"`
}

type GitHubConfig struct {
	BaseURL string        `envconfig:"DIGISTORE_GITHUB_BASE_URL"`
	Timeout time.Duration `envconfig:"DIGISTORE_GITHUB_TIMEOUT" default:"15s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
