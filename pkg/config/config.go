package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every tunable the binaries need.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Bank         BankConfig
	Fees         FeesConfig
	Orders       OrdersConfig
	Cron         CronConfig
	Email        EmailConfig
	FeatureFlags FeatureFlagsConfig
}

// Load reads configuration from the environment.
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

type AppConfig struct {
	Env          string `envconfig:"LITTLEWEARS_APP_ENV" required:"true"`
	Port         string `envconfig:"LITTLEWEARS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LITTLEWEARS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LITTLEWEARS_LOG_WARN_STACK" default:"false"`
}

// IsDev reports whether the app runs in the dev environment.
func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

// IsProd reports whether the app runs in production.
func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LITTLEWEARS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LITTLEWEARS_DB_DSN"`
	Driver string `envconfig:"LITTLEWEARS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LITTLEWEARS_DB_HOST"`
	LegacyPort     int    `envconfig:"LITTLEWEARS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LITTLEWEARS_DB_USER"`
	LegacyPassword string `envconfig:"LITTLEWEARS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LITTLEWEARS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LITTLEWEARS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LITTLEWEARS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LITTLEWEARS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LITTLEWEARS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LITTLEWEARS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LITTLEWEARS_REDIS_URL" required:"true"`
	Password     string        `envconfig:"LITTLEWEARS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LITTLEWEARS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LITTLEWEARS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LITTLEWEARS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LITTLEWEARS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LITTLEWEARS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LITTLEWEARS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BankConfig points at the corporate banking API. The transfer credential
// pair is distinct from the inquiry pair: money-moving endpoints run under
// the more privileged set only.
type BankConfig struct {
	BaseURL              string        `envconfig:"LITTLEWEARS_BANK_BASE_URL" required:"true"`
	ClientID             string        `envconfig:"LITTLEWEARS_BANK_CLIENT_ID" required:"true"`
	ClientSecret         string        `envconfig:"LITTLEWEARS_BANK_CLIENT_SECRET" required:"true"`
	TransferClientID     string        `envconfig:"LITTLEWEARS_BANK_TRANSFER_CLIENT_ID" required:"true"`
	TransferClientSecret string        `envconfig:"LITTLEWEARS_BANK_TRANSFER_CLIENT_SECRET" required:"true"`
	WithdrawalAccountNo  string        `envconfig:"LITTLEWEARS_BANK_WITHDRAWAL_ACCOUNT_NO" required:"true"`
	AccountNoPrefix      string        `envconfig:"LITTLEWEARS_BANK_ACCOUNT_NO_PREFIX" default:"05"`
	RequestTimeout       time.Duration `envconfig:"LITTLEWEARS_BANK_REQUEST_TIMEOUT" default:"15s"`
	BulkThresholdCents   int64         `envconfig:"LITTLEWEARS_BANK_BULK_THRESHOLD_CENTS" default:"10000000"`
}

// FeesConfig holds the revenue-split rates, expressed as percentages.
type FeesConfig struct {
	PlatformFeePercent       string `envconfig:"LITTLEWEARS_FEE_PLATFORM_PERCENT" default:"10"`
	DeliveryFeePercent       string `envconfig:"LITTLEWEARS_FEE_DELIVERY_PERCENT" default:"5"`
	DeliveryFeeFloorCents    int64  `envconfig:"LITTLEWEARS_FEE_DELIVERY_FLOOR_CENTS" default:"2500"`
	DefaultCommissionPercent string `envconfig:"LITTLEWEARS_COMMISSION_DEFAULT_PERCENT" default:"3"`
}

type OrdersConfig struct {
	ReservationTTL time.Duration `envconfig:"LITTLEWEARS_ORDER_RESERVATION_TTL" default:"10m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LITTLEWEARS_CRON_INTERVAL" default:"3m"`
	LockTTL  time.Duration `envconfig:"LITTLEWEARS_CRON_LOCK_TTL" default:"10m"`
}

type EmailConfig struct {
	APIKey      string `envconfig:"LITTLEWEARS_EMAIL_API_KEY"`
	DefaultFrom string `envconfig:"LITTLEWEARS_EMAIL_FROM" default:"orders@littlewears.example"`
	AdminTo     string `envconfig:"LITTLEWEARS_EMAIL_ADMIN_TO"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LITTLEWEARS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LITTLEWEARS_AUTO_MIGRATE" default:"false"`
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
