package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	Gateway      GatewayConfig
	Square       SquareConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Ops          OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(cfg.Square); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREATORVAULT_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"CREATORVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREATORVAULT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CREATORVAULT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"CREATORVAULT_SERVICE_KIND" default:"cron"`
}

type DBConfig struct {
	DSN        string `envconfig:"CREATORVAULT_DB_DSN"`
	SQLitePath string `envconfig:"CREATORVAULT_SQLITE_PATH" default:"creatorvault.db"`

	Host     string `envconfig:"CREATORVAULT_DB_HOST"`
	Port     int    `envconfig:"CREATORVAULT_DB_PORT" default:"5432"`
	User     string `envconfig:"CREATORVAULT_DB_USER"`
	Password string `envconfig:"CREATORVAULT_DB_PASSWORD"`
	Name     string `envconfig:"CREATORVAULT_DB_NAME"`
	SSLMode  string `envconfig:"CREATORVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREATORVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREATORVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREATORVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREATORVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"CREATORVAULT_DB_SLOW_QUERY" default:"500ms"`
	TxRetries          int           `envconfig:"CREATORVAULT_DB_TX_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREATORVAULT_REDIS_URL"`
	Address      string        `envconfig:"CREATORVAULT_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"CREATORVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREATORVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREATORVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREATORVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREATORVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREATORVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREATORVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LedgerConfig holds the money rules applied when transactions are created and paid out.
type LedgerConfig struct {
	PlatformFeeRate      string        `envconfig:"CREATORVAULT_PLATFORM_FEE_RATE" default:"0.20"`
	DefaultMinimumPayout string        `envconfig:"CREATORVAULT_DEFAULT_MINIMUM_PAYOUT" default:"20.00"`
	Currency             string        `envconfig:"CREATORVAULT_CURRENCY" default:"USD"`
	RefundClawback       string        `envconfig:"CREATORVAULT_REFUND_CLAWBACK" default:"out_of_band"`
	StaleUnlockAfter     time.Duration `envconfig:"CREATORVAULT_STALE_UNLOCK_AFTER" default:"15m"`
}

// PlatformFeeRateDecimal returns the configured fee rate. Load guarantees it parses.
func (l LedgerConfig) PlatformFeeRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(l.PlatformFeeRate))
	if err != nil {
		return decimal.RequireFromString("0.20")
	}
	return rate
}

// DefaultMinimumPayoutDecimal returns the payout floor used when a creator has none configured.
func (l LedgerConfig) DefaultMinimumPayoutDecimal() decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(l.DefaultMinimumPayout))
	if err != nil {
		return decimal.RequireFromString("20.00")
	}
	return amount
}

// Clawback returns the parsed refund clawback policy.
func (l LedgerConfig) Clawback() enums.RefundClawback {
	policy, err := enums.ParseRefundClawback(strings.TrimSpace(l.RefundClawback))
	if err != nil {
		return enums.RefundClawbackOutOfBand
	}
	return policy
}

func (l LedgerConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(l.PlatformFeeRate))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvPlatformFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1], got %s", EnvPlatformFeeRate, rate)
	}
	minimum, err := decimal.NewFromString(strings.TrimSpace(l.DefaultMinimumPayout))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvDefaultMinimumPayout, err)
	}
	if minimum.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvDefaultMinimumPayout)
	}
	if _, err := enums.ParseRefundClawback(strings.TrimSpace(l.RefundClawback)); err != nil {
		return err
	}
	if l.StaleUnlockAfter <= 0 {
		return fmt.Errorf("%s must be positive", EnvStaleUnlockAfter)
	}
	return nil
}

type GatewayConfig struct {
	Provider      string        `envconfig:"CREATORVAULT_GATEWAY_PROVIDER" default:"noop"`
	ChargeTimeout time.Duration `envconfig:"CREATORVAULT_GATEWAY_CHARGE_TIMEOUT" default:"20s"`
}

func (g GatewayConfig) validate(sq SquareConfig) error {
	switch strings.ToLower(strings.TrimSpace(g.Provider)) {
	case GatewayProviderNoop:
	case GatewayProviderSquare:
		if strings.TrimSpace(sq.AccessToken) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvSquareAccessToken, EnvGatewayProvider, GatewayProviderSquare)
		}
		if strings.TrimSpace(sq.LocationID) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvSquareLocationID, EnvGatewayProvider, GatewayProviderSquare)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvGatewayProvider, g.Provider)
	}
	if g.ChargeTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvGatewayChargeTimeout)
	}
	return nil
}

type SquareConfig struct {
	AccessToken string `envconfig:"CREATORVAULT_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"CREATORVAULT_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"CREATORVAULT_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CREATORVAULT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CREATORVAULT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"CREATORVAULT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CREATORVAULT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CREATORVAULT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CREATORVAULT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic           string `envconfig:"CREATORVAULT_PUBSUB_LEDGER_TOPIC" default:"cv-ledger-events"`
	NotificationTopic     string `envconfig:"CREATORVAULT_PUBSUB_NOTIFICATION_TOPIC" default:"cv-notification-events"`
	AnalyticsSubscription string `envconfig:"CREATORVAULT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"cv-ledger-analytics"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"CREATORVAULT_BIGQUERY_DATASET" default:"creatorvault"`
	LedgerTable string `envconfig:"CREATORVAULT_BIGQUERY_LEDGER_TABLE" default:"ledger_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CREATORVAULT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CREATORVAULT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CREATORVAULT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig paces the maintenance cycle. Zero values fall back to the
// cron package defaults.
type CronConfig struct {
	Interval   time.Duration `envconfig:"CREATORVAULT_CRON_INTERVAL" default:"5m"`
	JobTimeout time.Duration `envconfig:"CREATORVAULT_CRON_JOB_TIMEOUT" default:"2m"`
	LockTTL    time.Duration `envconfig:"CREATORVAULT_CRON_LOCK_TTL" default:"10m"`

	OutboxRetention time.Duration `envconfig:"CREATORVAULT_OUTBOX_RETENTION" default:"720h"`
	DLQRetention    time.Duration `envconfig:"CREATORVAULT_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type OpsConfig struct {
	Addr string `envconfig:"CREATORVAULT_OPS_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	discrete := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if discrete[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
