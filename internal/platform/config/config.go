package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory     = "memory"
	BackendRedis      = "redis"
	BackendPostgres   = "postgres"
	BackendSQLite     = "sqlite"
	BackendEdgeConfig = "edgeconfig"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	StoreBackend string `env:"STORE_BACKEND" default:"memory"`
	PetKey       string `env:"PET_KEY" default:"pet"`
	RedisURL     string `env:"REDIS_URL"`
	DatabaseURL  string `env:"DATABASE_URL"`
	SQLitePath   string `env:"SQLITE_PATH"`

	// Edge Config credentials are optional: without them the store logs and
	// skips, and the service runs on freshly created pets.
	EdgeConfig     string `env:"EDGE_CONFIG"`
	EdgeConfigID   string `env:"EDGE_CONFIG_ID"`
	VercelAPIToken string `env:"VERCEL_API_TOKEN"`

	RelayEnabled     bool          `env:"RELAY_ENABLED" default:"false"`
	SubscriberBuffer int           `env:"SUBSCRIBER_BUFFER" default:"16"`
	SSEKeepalive     time.Duration `env:"SSE_KEEPALIVE" default:"15s"`
	TickInterval     time.Duration `env:"TICK_INTERVAL" default:"0s"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"10"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case BackendMemory, BackendEdgeConfig:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required for STORE_BACKEND=redis")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORE_BACKEND=postgres")
		}
		if cfg.IsProduction() {
			if err := validateSSLMode(cfg.DatabaseURL); err != nil {
				return err
			}
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for STORE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.RelayEnabled && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required when RELAY_ENABLED=true")
	}
	if strings.TrimSpace(cfg.PetKey) == "" {
		return errors.New("PET_KEY must not be empty")
	}
	if cfg.SubscriberBuffer < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be at least 1, got %d", cfg.SubscriberBuffer)
	}
	if cfg.SSEKeepalive <= 0 {
		return errors.New("SSE_KEEPALIVE must be positive")
	}
	if cfg.TickInterval < 0 {
		return errors.New("TICK_INTERVAL must not be negative")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst < 1 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
