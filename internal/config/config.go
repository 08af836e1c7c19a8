// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"centralpublisher/internal/apperrors"
)

// DefaultBaseURL is the production Publisher Portal root.
const DefaultBaseURL = "https://central.sonatype.com/"

// Config holds connection and polling settings shared by all commands.
type Config struct {
	BaseURL        string
	Username       string
	Password       string
	PollInterval   time.Duration
	MaxPollErrors  int
	PollBackoffMax time.Duration // 0 keeps the poll interval fixed
	HTTPTimeout    time.Duration
	LogLevel       string
	LogFormat      string
	MetricsAddr    string // empty disables the metrics listener
	NotifyURL      string
	NotifyKey      string
}

// LoadFromEnv loads configuration from CENTRAL_* environment variables.
func LoadFromEnv() *Config {
	password := GetEnv("CENTRAL_PASSWORD", "")
	if password == "" {
		password = GetSecretFile(GetEnv("CENTRAL_PASSWORD_FILE", ""))
	}
	return &Config{
		BaseURL:        GetEnv("CENTRAL_BASE_URL", DefaultBaseURL),
		Username:       GetEnv("CENTRAL_USERNAME", ""),
		Password:       password,
		PollInterval:   GetDurationEnv("CENTRAL_POLL_INTERVAL", time.Second),
		MaxPollErrors:  GetIntEnv("CENTRAL_MAX_POLL_ERRORS", 3),
		PollBackoffMax: GetDurationEnv("CENTRAL_POLL_BACKOFF_MAX", 0),
		HTTPTimeout:    GetDurationEnv("CENTRAL_HTTP_TIMEOUT", 5*time.Minute),
		LogLevel:       GetEnv("CENTRAL_LOG_LEVEL", "info"),
		LogFormat:      GetEnv("CENTRAL_LOG_FORMAT", "text"),
		MetricsAddr:    GetEnv("CENTRAL_METRICS_ADDR", ""),
		NotifyURL:      GetEnv("CENTRAL_NOTIFY_URL", ""),
		NotifyKey:      GetSecretFile(GetEnv("CENTRAL_NOTIFY_KEY_FILE", "")),
	}
}

// Validate checks settings required before any network call is made.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return apperrors.Validation("username", "username is required (--username or CENTRAL_USERNAME)")
	}
	if c.Password == "" {
		return apperrors.Validation("password", "password is required (--password, CENTRAL_PASSWORD or CENTRAL_PASSWORD_FILE)")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return apperrors.Validation("baseURL", fmt.Sprintf("invalid base URL %q: %v", c.BaseURL, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.Validation("baseURL", fmt.Sprintf("invalid base URL %q: scheme must be http or https", c.BaseURL))
	}
	if u.Host == "" {
		return apperrors.Validation("baseURL", fmt.Sprintf("invalid base URL %q: host is required", c.BaseURL))
	}
	if c.PollInterval <= 0 {
		return apperrors.Validation("pollInterval", "poll interval must be positive")
	}
	if c.MaxPollErrors < 0 {
		return apperrors.Validation("maxPollErrors", "max poll errors must not be negative")
	}
	if c.PollBackoffMax < 0 {
		return apperrors.Validation("pollBackoffMax", "poll backoff max must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return apperrors.Validation("logFormat", fmt.Sprintf("unsupported log format %q (text or json)", c.LogFormat))
	}
	return nil
}
