package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const devJWTSecret = "cashpoint-development-secret"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `envconfig:"APP_NAME" default:"CashPoint"`
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	SnapshotPath   string        `envconfig:"SNAPSHOT_PATH"`
	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"cashpoint.ledger"`

	JWTSecret              string        `envconfig:"JWT_SECRET"`
	SessionTTL             time.Duration `envconfig:"SESSION_TTL" default:"5m"`
	LoginAttemptsPerMinute int           `envconfig:"LOGIN_ATTEMPTS_PER_MINUTE" default:"3"`

	PINScheme     string `envconfig:"PIN_SCHEME" default:"plain"`
	PINMinLength  int    `envconfig:"PIN_MIN_LENGTH" default:"0"`
	PINDigitsOnly bool   `envconfig:"PIN_DIGITS_ONLY" default:"false"`

	DailyWithdrawalLimit decimal.Decimal `envconfig:"DAILY_WITHDRAWAL_LIMIT" default:"1000"`
	DailyWithdrawalCount int             `envconfig:"DAILY_WITHDRAWAL_COUNT" default:"10"`
	RecentTransactions   int             `envconfig:"RECENT_TRANSACTIONS" default:"5"`
}

// Load reads an optional .env file, then the environment, into a Config.
func Load(envFiles ...string) (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.DailyWithdrawalLimit.IsNegative() {
		errs = append(errs, errors.New("DAILY_WITHDRAWAL_LIMIT must not be negative"))
	}
	if c.DailyWithdrawalCount < 0 {
		errs = append(errs, errors.New("DAILY_WITHDRAWAL_COUNT must not be negative"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if !c.IsDevelopment() {
		if c.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", c.AppEnv))
		}
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv))
		}
		if c.DatabaseURL == "" && c.SnapshotPath == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL or SNAPSHOT_PATH must be set when APP_ENV=%s", c.AppEnv))
		}
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the app runs in a local development mode.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
