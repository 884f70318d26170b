package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8000

	// Dataset defaults
	cfg.Dataset.CSVPath = "data/Walmart_Sales.csv"
	cfg.Dataset.Watch = true

	// Model artifact defaults
	cfg.Models.Dir = "models"

	// Database defaults
	cfg.Database.Path = "data/storesense.db"

	// Auth defaults. The gate stays off until a key is configured; the admin
	// session credentials mirror the original development deployment and are
	// expected to be overridden in production.
	cfg.Auth.Enabled = false
	cfg.Auth.APIKey = ""
	cfg.Auth.AdminUsername = "admin"
	cfg.Auth.AdminPassword = "admin123"
	cfg.Auth.JWTSecret = "storesense-dev-secret-change-me"
	cfg.Auth.TokenExpireMinutes = 30

	// Rate limiting defaults
	cfg.RateLimit.PerMinute = 100
	cfg.RateLimit.Burst = 100

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Audit defaults
	cfg.Audit.EventLogPath = "logs/events.log"
	cfg.Audit.AppLogPath = "logs/app.log"

	return cfg
}
