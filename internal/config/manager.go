package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("STORESENSE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional: defaults plus env vars are a complete
	// configuration on their own.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)

	// Dataset defaults
	m.viper.SetDefault("dataset.csv_path", defaults.Dataset.CSVPath)
	m.viper.SetDefault("dataset.watch", defaults.Dataset.Watch)

	// Model artifact defaults
	m.viper.SetDefault("models.dir", defaults.Models.Dir)

	// Database defaults
	m.viper.SetDefault("database.path", defaults.Database.Path)

	// Auth defaults
	m.viper.SetDefault("auth.enabled", defaults.Auth.Enabled)
	m.viper.SetDefault("auth.api_key", defaults.Auth.APIKey)
	m.viper.SetDefault("auth.admin_username", defaults.Auth.AdminUsername)
	m.viper.SetDefault("auth.admin_password", defaults.Auth.AdminPassword)
	m.viper.SetDefault("auth.jwt_secret", defaults.Auth.JWTSecret)
	m.viper.SetDefault("auth.token_expire_minutes", defaults.Auth.TokenExpireMinutes)

	// Rate limiting defaults
	m.viper.SetDefault("ratelimit.per_minute", defaults.RateLimit.PerMinute)
	m.viper.SetDefault("ratelimit.burst", defaults.RateLimit.Burst)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)

	// Audit defaults
	m.viper.SetDefault("audit.event_log_path", defaults.Audit.EventLogPath)
	m.viper.SetDefault("audit.app_log_path", defaults.Audit.AppLogPath)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")

	// Dataset
	cfg.Dataset.CSVPath = m.viper.GetString("dataset.csv_path")
	cfg.Dataset.Watch = m.viper.GetBool("dataset.watch")

	// Models
	cfg.Models.Dir = m.viper.GetString("models.dir")

	// Database
	cfg.Database.Path = m.viper.GetString("database.path")

	// Auth
	cfg.Auth.Enabled = m.viper.GetBool("auth.enabled")
	cfg.Auth.APIKey = m.viper.GetString("auth.api_key")
	cfg.Auth.AdminUsername = m.viper.GetString("auth.admin_username")
	cfg.Auth.AdminPassword = m.viper.GetString("auth.admin_password")
	cfg.Auth.JWTSecret = m.viper.GetString("auth.jwt_secret")
	cfg.Auth.TokenExpireMinutes = m.viper.GetInt("auth.token_expire_minutes")

	// Rate limiting
	cfg.RateLimit.PerMinute = m.viper.GetInt("ratelimit.per_minute")
	cfg.RateLimit.Burst = m.viper.GetInt("ratelimit.burst")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	// Audit
	cfg.Audit.EventLogPath = m.viper.GetString("audit.event_log_path")
	cfg.Audit.AppLogPath = m.viper.GetString("audit.app_log_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies the shorthand environment variables the original
// deployment used, which do not follow the section_key naming scheme.
func (m *viperConfigManager) applyEnvOverrides() {
	// API key from environment (setting it also enables the gate)
	if apiKey := os.Getenv("STORESENSE_API_KEY"); apiKey != "" {
		m.config.Auth.APIKey = apiKey
	}

	// Admin credentials from environment
	if username := os.Getenv("STORESENSE_ADMIN_USERNAME"); username != "" {
		m.config.Auth.AdminUsername = username
	}
	if password := os.Getenv("STORESENSE_ADMIN_PASSWORD"); password != "" {
		m.config.Auth.AdminPassword = password
	}

	// JWT signing secret from environment
	if secret := os.Getenv("STORESENSE_JWT_SECRET"); secret != "" {
		m.config.Auth.JWTSecret = secret
	}

	// Dataset and database paths from environment
	if csvPath := os.Getenv("STORESENSE_CSV_PATH"); csvPath != "" {
		m.config.Dataset.CSVPath = csvPath
	}
	if dbPath := os.Getenv("STORESENSE_DB_PATH"); dbPath != "" {
		m.config.Database.Path = dbPath
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("STORESENSE_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}
