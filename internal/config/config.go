package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the relay process.
type Config struct {
	Port     string
	GoEnv    string
	LogLevel string

	AllowedOrigins string

	// Rate limits (ulule/limiter format strings, see internal/ratelimit)
	RateLimitWsConnectPerIP string
	RestoreLimitWindow      string
}

// ValidateEnv reads the environment variables and returns a Config object.
// Every variable falls back to a default when unset; an error is returned
// only when PORT is not a valid port number.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "*")

	cfg.RateLimitWsConnectPerIP = getEnvOrDefault("RATE_LIMIT_WS_CONNECT_IP", "30-M")
	cfg.RestoreLimitWindow = getEnvOrDefault("RATE_LIMIT_RESTORE", "1-5s")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// logValidatedConfig logs the validated configuration.
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"allowed_origins", cfg.AllowedOrigins,
		"rate_limit_ws_connect_ip", cfg.RateLimitWsConnectPerIP,
		"rate_limit_restore", cfg.RestoreLimitWindow,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
