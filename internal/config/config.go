package config

import (
	"context"
	"fmt"
	"time"
)

// Package config provides configuration management for the StoreSense server.
//
// Responsibilities:
//   - Load configuration from an optional YAML file and environment variables
//   - Validate configuration on startup (fail fast on invalid values)
//   - Provide runtime access to all configuration
//   - Support configuration reloading of the YAML file
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (STORESENSE_* prefix, plus a few shorthands
//      like STORESENSE_API_KEY carried over from the original deployment)
//   2. YAML config file (default: storesense.yaml, optional)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - host: Listen host (default 0.0.0.0)
//      - port: Listen port (default 8000)
//
//   2. Dataset
//      - csv_path: Path to the historical sales CSV
//      - watch: Reload the dataset when the file changes
//
//   3. Models
//      - dir: Directory holding the trained model artifact JSON files
//
//   4. Database
//      - path: SQLite database file for the analytics trail
//
//   5. Auth
//      - enabled: Force the API-key gate on even without a key set
//      - api_key: Shared key for the X-API-Key gate (setting it enables auth)
//      - admin_username / admin_password: Admin session credentials
//      - jwt_secret: HS256 signing secret for session tokens
//      - token_expire_minutes: Session token lifetime
//
//   6. RateLimit
//      - per_minute: Allowed requests per minute per client IP
//      - burst: Token bucket burst size
//
//   7. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//
//   8. Audit
//      - event_log_path / app_log_path: Rotating log sinks
//
// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host string
		Port int
	}

	// Dataset configuration
	Dataset struct {
		CSVPath string
		Watch   bool
	}

	// Model artifact configuration
	Models struct {
		Dir string
	}

	// Database configuration
	Database struct {
		Path string
	}

	// Auth configuration
	Auth struct {
		Enabled            bool
		APIKey             string
		AdminUsername      string
		AdminPassword      string
		JWTSecret          string
		TokenExpireMinutes int
	}

	// Rate limiting configuration
	RateLimit struct {
		PerMinute int
		Burst     int
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Audit configuration
	Audit struct {
		EventLogPath string
		AppLogPath   string
	}
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AuthEnabled reports whether the API-key gate is active: either forced on
// explicitly or implied by a configured key.
func (c *Config) AuthEnabled() bool {
	return c.Auth.Enabled || c.Auth.APIKey != ""
}

// TokenExpiry returns the admin session token lifetime.
func (c *Config) TokenExpiry() time.Duration {
	return time.Duration(c.Auth.TokenExpireMinutes) * time.Minute
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("storesense.yaml")
}
