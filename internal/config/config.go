// Package config loads lotteryd configuration from a YAML file, an optional
// .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// DefaultPath is read when no explicit path is given.
var DefaultPath = filepath.Join("config", "lotteryd.yaml")

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	Redis      RedisConfig          `yaml:"redis"`
	Logging    logger.LoggingConfig `yaml:"logging"`
	Auth       AuthConfig           `yaml:"auth"`
	RateLimit  RateLimitConfig      `yaml:"rate_limit"`
	Feed       FeedConfig           `yaml:"feed"`
	Scheduler  SchedulerConfig      `yaml:"scheduler"`
	Settlement SettlementConfig     `yaml:"settlement"`
	Inventory  InventoryConfig      `yaml:"inventory"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"SERVER_HOST"`
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	CORSOrigins  []string      `yaml:"cors_origins" env:"SERVER_CORS_ORIGINS"`
	AuditLog     string        `yaml:"audit_log" env:"SERVER_AUDIT_LOG"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the Postgres store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig configures the availability cache and draw lock. An empty Addr
// disables both.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	Prefix   string        `yaml:"prefix" env:"REDIS_PREFIX"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL"`
}

// AuthConfig configures caller identity. Without a JWT secret the API trusts
// the X-User-ID header set by the gateway.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	AdminKeys []string `yaml:"admin_keys" env:"AUTH_ADMIN_KEYS"`
}

// RateLimitConfig configures per-caller request limits. Zero disables.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// FeedConfig configures the published results feed.
type FeedConfig struct {
	URL        string        `yaml:"url" env:"FEED_URL"`
	Path       string        `yaml:"path" env:"FEED_PATH"`
	APIKey     string        `yaml:"api_key" env:"FEED_API_KEY"`
	Timeout    time.Duration `yaml:"timeout" env:"FEED_TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"FEED_MAX_RETRIES"`
}

// SchedulerConfig configures the periodic jobs.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	TimeZone     string `yaml:"time_zone" env:"SCHEDULER_TIME_ZONE"`
	ResultSync   string `yaml:"result_sync" env:"SCHEDULER_RESULT_SYNC"`
	DrawRollover string `yaml:"draw_rollover" env:"SCHEDULER_DRAW_ROLLOVER"`
}

// SettlementConfig configures the settlement engine.
type SettlementConfig struct {
	CreditWinnings bool          `yaml:"credit_winnings" env:"SETTLEMENT_CREDIT_WINNINGS"`
	LockTTL        time.Duration `yaml:"lock_ttl" env:"SETTLEMENT_LOCK_TTL"`
}

// InventoryConfig configures the combination inventory.
type InventoryConfig struct {
	CacheEnabled bool `yaml:"cache_enabled" env:"INVENTORY_CACHE_ENABLED"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Redis: RedisConfig{
			Prefix:   "lottery",
			CacheTTL: 30 * time.Second,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Feed: FeedConfig{
			Path:       "/results",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TimeZone:     "America/Bogota",
			ResultSync:   "@every 15m",
			DrawRollover: "5 0 * * *",
		},
		Settlement: SettlementConfig{
			CreditWinnings: true,
			LockTTL:        10 * time.Minute,
		},
		Inventory: InventoryConfig{CacheEnabled: true},
	}
}

// Load reads DefaultPath when it exists, then .env and the environment.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath, true)
}

// LoadFromPath reads path over the defaults, then overlays a .env file from
// the working directory and the environment. A missing file is an error
// unless optional is set.
func LoadFromPath(path string, optional bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && optional:
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		problems = append(problems, "database.driver is required with a dsn")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		problems = append(problems, "rate_limit values must not be negative")
	}
	if c.Feed.URL != "" && !strings.HasPrefix(c.Feed.URL, "http://") && !strings.HasPrefix(c.Feed.URL, "https://") {
		problems = append(problems, "feed.url must be an http(s) URL")
	}
	if c.Scheduler.Enabled {
		if _, err := time.LoadLocation(c.Scheduler.TimeZone); err != nil {
			problems = append(problems, fmt.Sprintf("scheduler.time_zone %q is unknown", c.Scheduler.TimeZone))
		}
	}
	if c.Settlement.LockTTL <= 0 {
		problems = append(problems, "settlement.lock_ttl must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the scheduler time zone, UTC when unset or invalid.
func (s SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil || s.TimeZone == "" {
		return time.UTC
	}
	return loc
}
