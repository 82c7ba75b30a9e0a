package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Commerce     CommerceConfig
	Gateway      GatewayConfig
	PostalCode   PostalCodeConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	if cfg.Checkout.PostalCodeLength <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvCheckoutPostalCodeLength)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSOrigins []string      `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
	CORSMaxAge  time.Duration `envconfig:"STOREFRONT_CORS_MAX_AGE" default:"5m"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN                string        `envconfig:"STOREFRONT_DB_DSN"`
	Driver             string        `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`
	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"200ms"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
	KeyPrefix    string        `envconfig:"STOREFRONT_REDIS_KEY_PREFIX" default:"sf"`
}

// JWTConfig verifies session tokens minted by the commerce backend.
type JWTConfig struct {
	Secret             string        `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer             string        `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	Leeway             time.Duration `envconfig:"STOREFRONT_JWT_LEEWAY" default:"30s"`
	StoredTokenTTLMins int           `envconfig:"STOREFRONT_STORED_TOKEN_TTL_MINUTES" default:"1440"`
}

// StoredTokenTTL bounds how long a token persisted for a storefront session survives.
func (j JWTConfig) StoredTokenTTL() time.Duration {
	if j.StoredTokenTTLMins <= 0 {
		return 0
	}
	return time.Duration(j.StoredTokenTTLMins) * time.Minute
}

type CommerceConfig struct {
	BaseURL string        `envconfig:"STOREFRONT_COMMERCE_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"STOREFRONT_COMMERCE_TIMEOUT" default:"10s"`
}

type GatewayConfig struct {
	BaseURL          string        `envconfig:"STOREFRONT_GATEWAY_BASE_URL" required:"true"`
	PublicKey        string        `envconfig:"STOREFRONT_GATEWAY_PUBLIC_KEY" required:"true"`
	Timeout          time.Duration `envconfig:"STOREFRONT_GATEWAY_TIMEOUT" default:"15s"`
	BreakerFailures  uint32        `envconfig:"STOREFRONT_GATEWAY_BREAKER_FAILURES" default:"5"`
	BreakerOpenDelay time.Duration `envconfig:"STOREFRONT_GATEWAY_BREAKER_OPEN_DELAY" default:"30s"`
}

type PostalCodeConfig struct {
	BaseURL string        `envconfig:"STOREFRONT_POSTAL_CODE_BASE_URL" default:"https://viacep.com.br/ws"`
	Timeout time.Duration `envconfig:"STOREFRONT_POSTAL_CODE_TIMEOUT" default:"5s"`
}

type CartConfig struct {
	GuestSnapshotTTL time.Duration `envconfig:"STOREFRONT_CART_GUEST_TTL" default:"720h"`
	SessionIdleTTL   time.Duration `envconfig:"STOREFRONT_SESSION_IDLE_TTL" default:"2h"`
	JanitorInterval  time.Duration `envconfig:"STOREFRONT_SESSION_JANITOR_INTERVAL" default:"5m"`
}

type CheckoutConfig struct {
	PostalCodeLength int           `envconfig:"STOREFRONT_CHECKOUT_POSTAL_CODE_LENGTH" default:"8"`
	ShippingDebounce time.Duration `envconfig:"STOREFRONT_CHECKOUT_SHIPPING_DEBOUNCE" default:"400ms"`
	SuccessPath      string        `envconfig:"STOREFRONT_CHECKOUT_SUCCESS_PATH" default:"/checkout/success"`
	PixDescription   string        `envconfig:"STOREFRONT_CHECKOUT_PIX_DESCRIPTION" default:"Storefront order"`
}

// RateLimitConfig bounds the endpoints that reach paid or enumerable backend calls.
type RateLimitConfig struct {
	Window              time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	AvailabilityIP      int           `envconfig:"STOREFRONT_RATE_LIMIT_AVAILABILITY_IP" default:"60"`
	AvailabilitySession int           `envconfig:"STOREFRONT_RATE_LIMIT_AVAILABILITY_SESSION" default:"20"`
	SubmitIP            int           `envconfig:"STOREFRONT_RATE_LIMIT_SUBMIT_IP" default:"20"`
	SubmitSession       int           `envconfig:"STOREFRONT_RATE_LIMIT_SUBMIT_SESSION" default:"5"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CheckoutTopic  string        `envconfig:"STOREFRONT_PUBSUB_CHECKOUT_TOPIC"`
	BatchDelay     time.Duration `envconfig:"STOREFRONT_PUBSUB_BATCH_DELAY" default:"10ms"`
	BatchSize      int           `envconfig:"STOREFRONT_PUBSUB_BATCH_SIZE" default:"100"`
	PublishTimeout time.Duration `envconfig:"STOREFRONT_PUBSUB_PUBLISH_TIMEOUT" default:"30s"`
}

// Enabled reports whether checkout events should be published at all.
func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(p.CheckoutTopic) != "" && strings.TrimSpace(gcp.ProjectID) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// DB drivers understood by the ledger client.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func (db *DBConfig) ensureDSN() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case "":
		db.Driver = DriverPostgres
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%s must be %s or %s, got %q", EnvDBDriver, DriverPostgres, DriverSQLite, db.Driver)
	}
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		return fmt.Errorf("%s is required for the %s driver", EnvDBDSN, DriverSQLite)
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
