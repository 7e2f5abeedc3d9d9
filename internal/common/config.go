// Package common provides shared utilities for Examdesk
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the Examdesk server.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Auth        AuthConfig    `toml:"auth"`
	SMTP        SMTPConfig    `toml:"smtp"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	AllowedOrigins string `toml:"allowed_origins"` // comma-separated CORS origins
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// AuthConfig holds token, lockout, and rate-limit configuration.
//
// AccessSecret signs access tokens. RefreshSecret is the base from which
// per-user refresh secrets are derived, so rotating it invalidates every
// outstanding refresh token at once.
type AuthConfig struct {
	AccessSecret       string `toml:"access_secret"`
	RefreshSecret      string `toml:"refresh_secret"`
	AccessTokenExpiry  string `toml:"access_token_expiry"`  // duration string, default "15m"
	RefreshTokenExpiry string `toml:"refresh_token_expiry"` // duration string, default "168h"
	OTPExpiry          string `toml:"otp_expiry"`           // duration string, default "10m"

	MaxLoginAttempts int    `toml:"max_login_attempts"` // default 5
	LockoutWindow    string `toml:"lockout_window"`     // duration string, default "30m"
	MaxResetRequests int    `toml:"max_reset_requests"` // default 3
	ResetWindow      string `toml:"reset_window"`       // duration string, default "24h"

	RateLimitRequests int    `toml:"rate_limit_requests"` // default 100
	RateLimitWindow   string `toml:"rate_limit_window"`   // duration string, default "15m"
}

// GetAccessTokenExpiry parses and returns the access token lifetime.
func (c *AuthConfig) GetAccessTokenExpiry() time.Duration {
	return parseDuration(c.AccessTokenExpiry, 15*time.Minute)
}

// GetRefreshTokenExpiry parses and returns the refresh token lifetime.
func (c *AuthConfig) GetRefreshTokenExpiry() time.Duration {
	return parseDuration(c.RefreshTokenExpiry, 7*24*time.Hour)
}

// GetOTPExpiry parses and returns the password-reset OTP lifetime.
func (c *AuthConfig) GetOTPExpiry() time.Duration {
	return parseDuration(c.OTPExpiry, 10*time.Minute)
}

// GetLockoutWindow parses and returns the login lockout window.
func (c *AuthConfig) GetLockoutWindow() time.Duration {
	return parseDuration(c.LockoutWindow, 30*time.Minute)
}

// GetResetWindow parses and returns the password-reset throttle window.
func (c *AuthConfig) GetResetWindow() time.Duration {
	return parseDuration(c.ResetWindow, 24*time.Hour)
}

// GetRateLimitWindow parses and returns the per-IP rate limit window.
func (c *AuthConfig) GetRateLimitWindow() time.Duration {
	return parseDuration(c.RateLimitWindow, 15*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// SMTPConfig holds mail delivery configuration for OTP emails.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// Addr returns the host:port dial address for the SMTP server.
func (c *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			AllowedOrigins: "http://localhost:3000",
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000",
			Namespace: "examdesk",
			Database:  "examdesk",
			Username:  "root",
			Password:  "root",
		},
		Auth: AuthConfig{
			AccessTokenExpiry:  "15m",
			RefreshTokenExpiry: "168h",
			OTPExpiry:          "10m",
			MaxLoginAttempts:   5,
			LockoutWindow:      "30m",
			MaxResetRequests:   3,
			ResetWindow:        "24h",
			RateLimitRequests:  100,
			RateLimitWindow:    "15m",
		},
		SMTP: SMTPConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EXAMDESK_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("EXAMDESK_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("EXAMDESK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if origins := os.Getenv("EXAMDESK_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = origins
	}

	if level := os.Getenv("EXAMDESK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("EXAMDESK_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if v := os.Getenv("EXAMDESK_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("EXAMDESK_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := os.Getenv("EXAMDESK_AUTH_ACCESS_SECRET"); v != "" {
		config.Auth.AccessSecret = v
	}
	if v := os.Getenv("EXAMDESK_AUTH_REFRESH_SECRET"); v != "" {
		config.Auth.RefreshSecret = v
	}
	if v := os.Getenv("EXAMDESK_AUTH_ACCESS_TOKEN_EXPIRY"); v != "" {
		config.Auth.AccessTokenExpiry = v
	}

	if v := os.Getenv("EXAMDESK_SMTP_HOST"); v != "" {
		config.SMTP.Host = v
	}
	if v := os.Getenv("EXAMDESK_SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.SMTP.Port = p
		}
	}
	if v := os.Getenv("EXAMDESK_SMTP_USERNAME"); v != "" {
		config.SMTP.Username = v
	}
	if v := os.Getenv("EXAMDESK_SMTP_PASSWORD"); v != "" {
		config.SMTP.Password = v
	}
	if v := os.Getenv("EXAMDESK_SMTP_FROM"); v != "" {
		config.SMTP.From = v
	}
}

// Validate checks that required secrets are present. The server refuses to
// start without signing secrets and SMTP credentials.
func (c *Config) Validate() error {
	var missing []string

	if c.Auth.AccessSecret == "" {
		missing = append(missing, "auth.access_secret")
	}
	if c.Auth.RefreshSecret == "" {
		missing = append(missing, "auth.refresh_secret")
	}
	if c.SMTP.Username == "" {
		missing = append(missing, "smtp.username")
	}
	if c.SMTP.Password == "" {
		missing = append(missing, "smtp.password")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowedOriginList splits the configured CORS origins.
func (c *ServerConfig) AllowedOriginList() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
