package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Host == "" {
		errs = append(errs, &ValidationError{
			Field:   "server.host",
			Message: "host is required",
		})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Validate dataset configuration
	if c.Dataset.CSVPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "dataset.csv_path",
			Message: "csv_path is required",
		})
	}

	// Validate model artifact configuration
	if c.Models.Dir == "" {
		errs = append(errs, &ValidationError{
			Field:   "models.dir",
			Message: "models dir is required",
		})
	}

	// Validate database configuration
	if c.Database.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.path",
			Message: "database path is required",
		})
	}

	// Validate auth configuration
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, &ValidationError{
			Field:   "auth.api_key",
			Message: "api_key is required when auth is enabled",
		})
	}

	if c.Auth.AdminUsername == "" {
		errs = append(errs, &ValidationError{
			Field:   "auth.admin_username",
			Message: "admin_username is required",
		})
	}

	if c.Auth.AdminPassword == "" {
		errs = append(errs, &ValidationError{
			Field:   "auth.admin_password",
			Message: "admin_password is required",
		})
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, &ValidationError{
			Field:   "auth.jwt_secret",
			Message: "jwt_secret is required",
		})
	}

	if c.Auth.TokenExpireMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "auth.token_expire_minutes",
			Message: fmt.Sprintf("token_expire_minutes must be at least 1, got %d", c.Auth.TokenExpireMinutes),
		})
	}

	// Validate rate limiting configuration
	if c.RateLimit.PerMinute < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ratelimit.per_minute",
			Message: fmt.Sprintf("per_minute must be at least 1, got %d", c.RateLimit.PerMinute),
		})
	}

	if c.RateLimit.Burst < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ratelimit.burst",
			Message: fmt.Sprintf("burst must be at least 1, got %d", c.RateLimit.Burst),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	// Validate audit configuration
	if c.Audit.EventLogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.event_log_path",
			Message: "event_log_path is required",
		})
	}

	if c.Audit.AppLogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.app_log_path",
			Message: "app_log_path is required",
		})
	}

	return errs
}
