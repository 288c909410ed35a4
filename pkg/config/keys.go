package config

const (
	EnvPrefix = "CREATORVAULT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	GatewayProviderNoop   = "noop"
	GatewayProviderSquare = "square"
)

const (
	EnvAppEnv   = "CREATORVAULT_APP_ENV"
	EnvLogLevel = "CREATORVAULT_LOG_LEVEL"

	EnvDBDSN  = "CREATORVAULT_DB_DSN"
	EnvDBHost = "CREATORVAULT_DB_HOST"
	EnvDBUser = "CREATORVAULT_DB_USER"
	EnvDBName = "CREATORVAULT_DB_NAME"

	EnvRedisURL = "CREATORVAULT_REDIS_URL"

	EnvPlatformFeeRate      = "CREATORVAULT_PLATFORM_FEE_RATE"
	EnvDefaultMinimumPayout = "CREATORVAULT_DEFAULT_MINIMUM_PAYOUT"
	EnvRefundClawback       = "CREATORVAULT_REFUND_CLAWBACK"
	EnvStaleUnlockAfter     = "CREATORVAULT_STALE_UNLOCK_AFTER"

	EnvGatewayProvider      = "CREATORVAULT_GATEWAY_PROVIDER"
	EnvGatewayChargeTimeout = "CREATORVAULT_GATEWAY_CHARGE_TIMEOUT"
	EnvSquareAccessToken    = "CREATORVAULT_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID     = "CREATORVAULT_SQUARE_LOCATION_ID"

	EnvUseSQLite = "CREATORVAULT_USE_SQLITE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
