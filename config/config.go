package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rewardcore/adapters/redis"
	"rewardcore/adapters/redisbus"
	"rewardcore/adapters/sqlx"
	"rewardcore/integrations/aggregates"
	"rewardcore/router"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"REWARDCORE_ENV"`
	Profile     string      `json:"profile" env:"REWARDCORE_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Ledger storage configuration
	Ledger LedgerConfig `json:"ledger"`

	// Event bus configuration
	Bus BusConfig `json:"bus"`

	// Condition catalog configuration
	Catalog CatalogConfig `json:"catalog"`

	// Token verification configuration
	Auth AuthConfig `json:"auth"`

	// Gateway (request router) configuration
	Gateway GatewayConfig `json:"gateway"`

	// Collaborator aggregate endpoints
	Aggregates []aggregates.Endpoint `json:"aggregates,omitempty"`

	// Unlock webhook endpoints
	Webhooks WebhookConfig `json:"webhooks"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Security configuration
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"REWARDCORE_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"REWARDCORE_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"REWARDCORE_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"REWARDCORE_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"REWARDCORE_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"REWARDCORE_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"REWARDCORE_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"REWARDCORE_SERVER_SHUTDOWN_TIMEOUT"`
}

// LedgerConfig selects and configures the ledger adapter
type LedgerConfig struct {
	Adapter string       `json:"adapter" env:"REWARDCORE_LEDGER_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file ledger configuration
type FileConfig struct {
	Path string `json:"path" env:"REWARDCORE_LEDGER_FILE_PATH"`
}

// BusConfig holds event bus configuration. The bus shares the Redis
// instance shape with the Redis ledger but is configured independently.
type BusConfig struct {
	Enabled bool         `json:"enabled" env:"REWARDCORE_BUS_ENABLED"`
	Channel string       `json:"channel" env:"REWARDCORE_BUS_CHANNEL"`
	Redis   redis.Config `json:"redis,omitempty"`
}

// CatalogConfig locates the reward definition file
type CatalogConfig struct {
	Path string `json:"path" env:"REWARDCORE_CATALOG_PATH"`
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	// Enabled requires a verified bearer token on the reward API.
	Enabled     bool   `json:"enabled" env:"REWARDCORE_AUTH_ENABLED"`
	IdentityURL string `json:"identity_url" env:"REWARDCORE_AUTH_IDENTITY_URL"`
}

// GatewayConfig holds the request router configuration
type GatewayConfig struct {
	Address         string           `json:"address" env:"REWARDCORE_GATEWAY_ADDR"`
	PathPrefix      string           `json:"path_prefix" env:"REWARDCORE_GATEWAY_PATH_PREFIX"`
	CORSOrigin      string           `json:"cors_origin" env:"REWARDCORE_GATEWAY_CORS_ORIGIN"`
	UpstreamTimeout time.Duration    `json:"upstream_timeout" env:"REWARDCORE_GATEWAY_UPSTREAM_TIMEOUT"`
	Upstreams       router.Upstreams `json:"upstreams"`
	// Routes, when non-empty, replaces the default table entirely.
	Routes []router.Entry `json:"routes,omitempty"`
}

// Table builds the route table from explicit routes or the upstream set.
func (g GatewayConfig) Table() (*router.Table, error) {
	if len(g.Routes) > 0 {
		return router.NewTable(g.Routes)
	}
	return router.DefaultTable(g.Upstreams), nil
}

// WebhookConfig holds unlock forwarding configuration
type WebhookConfig struct {
	Endpoints []string `json:"endpoints,omitempty" env:"REWARDCORE_WEBHOOK_ENDPOINTS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"REWARDCORE_LOG_LEVEL"`
	Format     string            `json:"format" env:"REWARDCORE_LOG_FORMAT"`
	Output     string            `json:"output" env:"REWARDCORE_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"REWARDCORE_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"REWARDCORE_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"REWARDCORE_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"REWARDCORE_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"REWARDCORE_SECURITY_RATE_LIMIT_CLEANUP"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Ledger: LedgerConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/rewardcore.json",
			},
		},
		Bus: BusConfig{
			Enabled: true,
			Channel: redisbus.DefaultChannel,
			Redis:   redis.DefaultConfig(),
		},
		Catalog: CatalogConfig{
			Path: "./catalog.json",
		},
		Auth: AuthConfig{
			IdentityURL: "http://user-service:8000",
		},
		Gateway: GatewayConfig{
			Address:         ":8000",
			PathPrefix:      "/api/v1",
			CORSOrigin:      "*",
			UpstreamTimeout: router.DefaultUpstreamTimeout,
			Upstreams:       router.DefaultUpstreams(),
		},
		Webhooks: WebhookConfig{
			Endpoints: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ledger config: %v", err))
	}

	if err := c.Bus.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("bus config: %v", err))
	}

	if err := c.Catalog.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("catalog config: %v", err))
	}

	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("auth config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	// Create a copy for redaction
	cfg := *c

	if cfg.Ledger.SQL.DSN != "" {
		cfg.Ledger.SQL.DSN = "[REDACTED]"
	}
	if cfg.Ledger.Redis.Password != "" {
		cfg.Ledger.Redis.Password = "[REDACTED]"
	}
	if cfg.Bus.Redis.Password != "" {
		cfg.Bus.Redis.Password = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
