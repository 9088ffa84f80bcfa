// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RayBen445/ChatBot/domain/account"
	"github.com/RayBen445/ChatBot/domain/pricing"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATBOT_"

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Usage      UsageConfig      `yaml:"usage"`
	Identity   IdentityConfig   `yaml:"identity"`
	Generation GenerationConfig `yaml:"generation"`
	Admin      AdminConfig      `yaml:"admin"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the document store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// UsageConfig selects where message counters live.
// "store" keeps them next to the accounts; "redis" uses atomic hash increments.
type UsageConfig struct {
	Backend string      `yaml:"backend"`
	Shards  int         `yaml:"shards"` // memory backend only
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis usage backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// IdentityConfig configures identity-token verification.
type IdentityConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer,omitempty"`
	Audience string        `yaml:"audience,omitempty"`
	Leeway   time.Duration `yaml:"leeway"`
}

// GenerationConfig configures the text-generation provider.
// An empty URL runs the offline generator.
type GenerationConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// AdminConfig configures administration.
type AdminConfig struct {
	Emails     []string `yaml:"emails"` // Promoted to admin when their account is created
	MaxRetries int      `yaml:"max_retries"`
}

// PricingConfig overrides the built-in price table.
// Defaults maps tier -> currency -> decimal string.
type PricingConfig struct {
	Currencies []string                     `yaml:"currencies"`
	Defaults   map[string]map[string]string `yaml:"defaults"`
}

// Table parses Defaults.
func (p PricingConfig) Table() (pricing.Table, error) {
	out := pricing.Table{}
	for rawTier, prices := range p.Defaults {
		tier, err := account.ParseTier(rawTier)
		if err != nil {
			return nil, err
		}
		row := map[pricing.Currency]decimal.Decimal{}
		for rawCur, rawAmount := range prices {
			c, err := pricing.ParseCurrency(rawCur)
			if err != nil {
				return nil, err
			}
			amount, err := decimal.NewFromString(rawAmount)
			if err != nil {
				return nil, fmt.Errorf("pricing.defaults.%s.%s: %w", rawTier, rawCur, err)
			}
			row[c] = amount
		}
		out[tier] = row
	}
	if err := pricing.ValidateTable(out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	CHATBOT_SERVER_HOST        - Server host (default: 0.0.0.0)
//	CHATBOT_SERVER_PORT        - Server port (default: 8080)
//	CHATBOT_DATABASE_DRIVER    - sqlite or memory (default: sqlite)
//	CHATBOT_DATABASE_DSN       - Database path (default: chatbot.db)
//	CHATBOT_USAGE_BACKEND      - store or redis (default: store)
//	CHATBOT_REDIS_ADDR         - Redis address for the redis backend
//	CHATBOT_IDENTITY_SECRET    - Identity token secret (required)
//	CHATBOT_GENERATION_URL     - Provider base URL (empty = offline)
//	CHATBOT_GENERATION_API_KEY - Provider API key
//	CHATBOT_ADMIN_EMAILS       - Comma-separated admin emails
//	CHATBOT_LOG_LEVEL          - debug, info, warn, error (default: info)
//	CHATBOT_LOG_FORMAT         - json or console (default: json)
//	CHATBOT_METRICS_ENABLED    - Enable /metrics (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if HasEnvConfig() {
		return LoadFromEnv()
	}
	return nil, fmt.Errorf("no configuration found: provide a config file or set %sIDENTITY_SECRET", EnvPrefix)
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv(EnvPrefix+"IDENTITY_SECRET") != ""
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// applyEnvOverrides applies CHATBOT_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := env("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := env("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := env("SERVER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}

	// Database configuration
	if v := env("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := env("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Usage configuration
	if v := env("USAGE_BACKEND"); v != "" {
		cfg.Usage.Backend = v
	}
	if v := env("REDIS_ADDR"); v != "" {
		cfg.Usage.Redis.Addr = v
	}
	if v := env("REDIS_PASSWORD"); v != "" {
		cfg.Usage.Redis.Password = v
	}
	if v := env("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Usage.Redis.DB = n
		}
	}

	// Identity configuration
	if v := env("IDENTITY_SECRET"); v != "" {
		cfg.Identity.Secret = v
	}
	if v := env("IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := env("IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}

	// Generation configuration
	if v := env("GENERATION_URL"); v != "" {
		cfg.Generation.URL = v
	}
	if v := env("GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := env("GENERATION_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := env("GENERATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Generation.Timeout = d
		}
	}

	// Admin configuration
	if v := env("ADMIN_EMAILS"); v != "" {
		cfg.Admin.Emails = splitList(v)
	}

	// Logging configuration
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := env("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 90 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "chatbot.db"
	}

	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = "store"
	}
	if cfg.Usage.Shards == 0 {
		cfg.Usage.Shards = 16
	}
	if cfg.Usage.Redis.KeyPrefix == "" {
		cfg.Usage.Redis.KeyPrefix = "chatbot:usage:"
	}

	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-1.5-flash"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}

	if cfg.Admin.MaxRetries == 0 {
		cfg.Admin.MaxRetries = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Identity.Secret == "" {
		return fmt.Errorf("identity.secret is required")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	switch cfg.Usage.Backend {
	case "store":
	case "redis":
		if cfg.Usage.Redis.Addr == "" {
			return fmt.Errorf("usage.redis.addr is required when usage.backend is 'redis'")
		}
	default:
		return fmt.Errorf("usage.backend must be 'store' or 'redis', got %q", cfg.Usage.Backend)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	for _, c := range cfg.Pricing.Currencies {
		if _, err := pricing.ParseCurrency(c); err != nil {
			return fmt.Errorf("pricing.currencies: %w", err)
		}
	}
	if _, err := cfg.Pricing.Table(); err != nil {
		return fmt.Errorf("pricing.defaults: %w", err)
	}

	if cfg.Admin.MaxRetries < 0 {
		return fmt.Errorf("admin.max_retries must not be negative")
	}
	return nil
}
