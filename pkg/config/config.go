package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "tably"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TABLY_DB_DSN"
	EnvDBHost = "TABLY_DB_HOST"
	EnvDBUser = "TABLY_DB_USER"
	EnvDBName = "TABLY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Idempotency  IdempotencyConfig
	Billing      BillingConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	GCP          GCPConfig
	Queue        QueueConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AgentConfig is the posagent's slice of the environment. The agent runs on
// POS terminals without the server's database or redis, so it cannot share
// Load's required fields.
type AgentConfig struct {
	Env          string `envconfig:"TABLY_APP_ENV" default:"local"`
	LogLevel     string `envconfig:"TABLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TABLY_LOG_WARN_STACK" default:"false"`
	Queue        QueueConfig
}

// LoadAgent parses posagent configuration.
func LoadAgent() (*AgentConfig, error) {
	var cfg AgentConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config: %w", err)
	}
	if cfg.Queue.APIBaseURL == "" {
		return nil, fmt.Errorf("%s is required", "TABLY_QUEUE_API_BASE_URL")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLY_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TABLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TABLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"TABLY_DB_DSN"`

	LegacyHost     string `envconfig:"TABLY_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLY_DB_USER"`
	LegacyPassword string `envconfig:"TABLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLY_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"TABLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TABLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TABLY_JWT_ISSUER" default:"tably"`
	ExpirationMinutes int    `envconfig:"TABLY_JWT_EXPIRATION_MINUTES" default:"720"`
}

// GatewayConfig configures the payment gateway webhook surface.
type GatewayConfig struct {
	WebhookSecret   string        `envconfig:"TABLY_GATEWAY_WEBHOOK_SECRET" required:"true"`
	WebhookGuardTTL time.Duration `envconfig:"TABLY_GATEWAY_WEBHOOK_GUARD_TTL" default:"168h"`
}

// IdempotencyConfig bounds the order-creation dedup ledger.
type IdempotencyConfig struct {
	RecordTTL      time.Duration `envconfig:"TABLY_IDEMPOTENCY_RECORD_TTL" default:"1h"`
	FallbackWindow time.Duration `envconfig:"TABLY_IDEMPOTENCY_FALLBACK_WINDOW" default:"0s"`
	SweepInterval  time.Duration `envconfig:"TABLY_IDEMPOTENCY_SWEEP_INTERVAL" default:"10m"`
	ResponseTTL    time.Duration `envconfig:"TABLY_IDEMPOTENCY_RESPONSE_TTL" default:"24h"`
}

// BillingConfig carries bill-engine tunables.
type BillingConfig struct {
	// BalanceEpsilonCents is the close tolerance in minor currency units.
	BalanceEpsilonCents int `envconfig:"TABLY_BILLING_BALANCE_EPSILON_CENTS" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TABLY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TABLY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TABLY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TABLY_OUTBOX_RETENTION_DAYS" default:"14"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TABLY_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription string `envconfig:"TABLY_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"TABLY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"TABLY_GCP_CREDENTIALS_JSON"`
}

// QueueConfig tunes the posagent offline action queue.
type QueueConfig struct {
	StorePath    string        `envconfig:"TABLY_QUEUE_STORE_PATH" default:"tably-queue.db"`
	APIBaseURL   string        `envconfig:"TABLY_QUEUE_API_BASE_URL"`
	APIToken     string        `envconfig:"TABLY_QUEUE_API_TOKEN"`
	SyncInterval time.Duration `envconfig:"TABLY_QUEUE_SYNC_INTERVAL" default:"30s"`
	MaxAttempts  int           `envconfig:"TABLY_QUEUE_MAX_ATTEMPTS" default:"5"`
	HTTPTimeout  time.Duration `envconfig:"TABLY_QUEUE_HTTP_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TABLY_AUTO_MIGRATE" default:"false"`
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
