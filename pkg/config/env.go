package config

const (
	EnvPrefix = "DIGISTORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "DIGISTORE_APP_ENV"
	EnvPort     = "DIGISTORE_APP_PORT"
	EnvLogLevel = "DIGISTORE_LOG_LEVEL"

	EnvDBDSN  = "DIGISTORE_DB_DSN"
	EnvDBHost = "DIGISTORE_DB_HOST"
	EnvDBUser = "DIGISTORE_DB_USER"
	EnvDBName = "DIGISTORE_DB_NAME"

	EnvRedisURL = "DIGISTORE_REDIS_URL"

	EnvJWTSecret  = "DIGISTORE_JWT_SECRET"
	EnvJWTIssuer  = "DIGISTORE_JWT_ISSUER"
	EnvJWTExpMins = "DIGISTORE_JWT_EXPIRATION_MINUTES"

	EnvCheckoutTransactionCreation = "DIGISTORE_CHECKOUT_TRANSACTION_CREATION"

	EnvCronSecret = "DIGISTORE_CRON_SECRET"

	EnvStripeAPIKey = "DIGISTORE_STRIPE_API_KEY"
	EnvStripeSecret = "DIGISTORE_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
