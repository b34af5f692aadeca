package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName         = "TipZed"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultCurrency        = "ZMW"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultTokenTTL        = time.Hour
	defaultFeeRate         = "0.10"
	defaultSweepSchedule   = "@daily"
	defaultSweepLockTTL    = 10 * time.Minute
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	DefaultCurrency string

	JWTSecret         string
	AccessTokenTTL    time.Duration
	SystemAPIKeyHash  string
	SystemPrincipalID string

	Payout PayoutConfig
}

// PayoutConfig groups fee policy and sweep scheduling.
type PayoutConfig struct {
	FeeRate            decimal.Decimal
	RefundFeeOnFailure bool
	SweepEnabled       bool
	SweepSchedule      string
	SweepLockTTL       time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", defaultCurrency)),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenTTL:    defaultTokenTTL,
		SystemAPIKeyHash:  os.Getenv("SYSTEM_API_KEY_HASH"),
		SystemPrincipalID: getEnv("SYSTEM_PRINCIPAL_ID", "system"),
		Payout: PayoutConfig{
			SweepSchedule: getEnv("PAYOUT_SWEEP_SCHEDULE", defaultSweepSchedule),
			SweepLockTTL:  defaultSweepLockTTL,
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("", "ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.Payout.SweepLockTTL, err = durationEnv("", "PAYOUT_SWEEP_LOCK_TTL", cfg.Payout.SweepLockTTL); err != nil {
		return Config{}, err
	}

	rate, err := decimal.NewFromString(getEnv("PAYOUT_FEE_RATE", defaultFeeRate))
	if err != nil {
		return Config{}, fmt.Errorf("invalid PAYOUT_FEE_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("invalid PAYOUT_FEE_RATE: %s must be in [0, 1)", rate)
	}
	cfg.Payout.FeeRate = rate

	if cfg.Payout.RefundFeeOnFailure, err = boolEnv("PAYOUT_REFUND_FEE_ON_FAILURE", false); err != nil {
		return Config{}, err
	}
	if cfg.Payout.SweepEnabled, err = boolEnv("PAYOUT_SWEEP_ENABLED", true); err != nil {
		return Config{}, err
	}

	if cfg.IsDev() {
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers an integer seconds variable over a Go duration string.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
