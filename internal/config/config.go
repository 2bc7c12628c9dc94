package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cinepay/internal/cache"
	"cinepay/internal/database"
	"cinepay/internal/external"
	"cinepay/internal/messaging"
	"cinepay/internal/notify"
)

// Config holds the application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	App      AppConfig
	Rapikom  external.RapikomConfig
	Booking  external.BookingConfig
	Webhook  WebhookConfig
	Database database.Config
	NATS     messaging.Config
	Redis    cache.Config
	SMTP     notify.Config
}

type AppConfig struct {
	// Env is development, staging or production
	Env     string
	BaseURL string
}

type WebhookConfig struct {
	Secret string
	Algo   string
	// Store selects the audit log backend: postgres or memory
	Store          string
	ReplayInterval time.Duration
	MaxAttempts    int
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Load reads configuration from the environment; a .env file in the working
// directory is applied first when present
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	env := getEnv("APP_ENV", "development")
	appBaseURL := getEnv("APP_BASE_URL", "http://localhost:8080")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT_SEC", 30*time.Second),

		App: AppConfig{
			Env:     env,
			BaseURL: appBaseURL,
		},

		Rapikom: external.RapikomConfig{
			BaseURL:       getEnv("RAPIKOM_ENDPOINT", external.EndpointFor(env)),
			APIKey:        getEnv("RAPIKOM_API_KEY", ""),
			MerchantID:    getEnv("RAPIKOM_MERCHANT_ID", ""),
			Environment:   env,
			Timeout:       getEnvDuration("RAPIKOM_TIMEOUT_SEC", 30*time.Second),
			RetryAttempts: getEnvInt("RAPIKOM_RETRY_ATTEMPTS", 3),
			Currency:      getEnv("RAPIKOM_CURRENCY", "USD"),
			CinemaID:      getEnv("CINEMA_ID", ""),
			AppBaseURL:    appBaseURL,
		},

		Booking: external.BookingConfig{
			BaseURL: getEnv("BOOKING_API_URL", "http://localhost:8000"),
			Timeout: getEnvDuration("BOOKING_TIMEOUT_SEC", 30*time.Second),
		},

		Webhook: WebhookConfig{
			Secret:         getEnv("WEBHOOK_SECRET", ""),
			Algo:           getEnv("WEBHOOK_SIGNATURE_ALGO", "sha256"),
			Store:          strings.ToLower(getEnv("WEBHOOK_STORE", StoreMemory)),
			ReplayInterval: getEnvDuration("WEBHOOK_REPLAY_INTERVAL_SEC", time.Minute),
			MaxAttempts:    getEnvInt("WEBHOOK_REPLAY_MAX_ATTEMPTS", 5),
		},

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "cinepay"),
			Password:           getEnv("DB_PASSWORD", "cinepay"),
			DBName:             getEnv("DB_NAME", "cinepay"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", ""),
			ClusterID: getEnv("NATS_CLUSTER_ID", "cinepay"),
			ClientID:  getEnv("NATS_CLIENT_ID", "cinepay-api"),
			AckWait:   getEnvDuration("NATS_ACK_WAIT_SEC", 30*time.Second),
		},

		Redis: cache.Config{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL_SEC", 30*time.Second),
		},

		SMTP: notify.Config{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "tickets@cinepay.local"),
		},
	}
}

// Validate reports settings the payment flow cannot run without
func (c *Config) Validate() error {
	var missing []string
	if c.Rapikom.APIKey == "" {
		missing = append(missing, "RAPIKOM_API_KEY")
	}
	if c.Rapikom.MerchantID == "" {
		missing = append(missing, "RAPIKOM_MERCHANT_ID")
	}
	if c.Webhook.Secret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Webhook.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown WEBHOOK_STORE %q", c.Webhook.Store)
	}
	switch strings.ToLower(c.Webhook.Algo) {
	case "sha256", "sha512":
	default:
		return fmt.Errorf("unsupported WEBHOOK_SIGNATURE_ALGO %q", c.Webhook.Algo)
	}
	return nil
}

// getEnv returns the environment value or the default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer environment value or the default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration reads a whole number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
