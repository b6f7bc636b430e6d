package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if !cfg.DailyWithdrawalLimit.Equal(decimal.NewFromInt(1000)) || cfg.DailyWithdrawalCount != 10 {
		t.Fatalf("unexpected limits %s / %d", cfg.DailyWithdrawalLimit, cfg.DailyWithdrawalCount)
	}
	if cfg.SessionTTL != 5*time.Minute || cfg.LoginAttemptsPerMinute != 3 || cfg.RecentTransactions != 5 {
		t.Fatalf("unexpected session defaults %+v", cfg)
	}
	if cfg.JWTSecret == "" {
		t.Fatalf("expected development secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PORT", ":9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DAILY_WITHDRAWAL_LIMIT", "500.50")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9000" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected %q %q", cfg.Address(), cfg.LogLevel)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if !cfg.DailyWithdrawalLimit.Equal(decimal.RequireFromString("500.5")) {
		t.Fatalf("unexpected limit %s", cfg.DailyWithdrawalLimit)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("unexpected shutdown period %s", cfg.ShutdownPeriod)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("APP_NAME=FromFile\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_NAME", "")
	os.Unsetenv("APP_NAME")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "FromFile" {
		t.Fatalf("expected app name from .env, got %q", cfg.AppName)
	}
}

func TestProductionRequiresInfrastructure(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SNAPSHOT_PATH", "")

	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatalf("expected validation error")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SNAPSHOT_PATH", filepath.Join(t.TempDir(), "accounts.json"))
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
}
