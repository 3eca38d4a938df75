package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// TCP game endpoint
	TCPHost string
	TCPPort string

	// Admin HTTP surface; empty port disables it entirely
	AdminPort  string
	AdminToken string

	// External identity service
	PhiraAPIBase string

	// Persistent state files
	SecurityFile string
	MonitorsFile string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Rate limits (ulule format, e.g. "30-M")
	RateLimitConnect string
	RateLimitAdmin   string

	// Tracing; empty disables the OTLP exporter
	OtelCollectorAddr string

	// Default cap applied to newly created rooms; 0 = unbounded
	MaxRoomUsers int
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error if any variable is present but invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	cfg.TCPHost = getEnvOrDefault("TCP_HOST", "0.0.0.0")

	cfg.TCPPort = getEnvOrDefault("TCP_PORT", "12346")
	if !isValidPort(cfg.TCPPort) {
		errors = append(errors, fmt.Sprintf("TCP_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.TCPPort))
	}

	cfg.AdminPort = os.Getenv("ADMIN_PORT")
	if cfg.AdminPort != "" && !isValidPort(cfg.AdminPort) {
		errors = append(errors, fmt.Sprintf("ADMIN_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.AdminPort))
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	cfg.PhiraAPIBase = getEnvOrDefault("PHIRA_API_BASE", "https://phira.5wyxi.com")
	if !strings.HasPrefix(cfg.PhiraAPIBase, "http://") && !strings.HasPrefix(cfg.PhiraAPIBase, "https://") {
		errors = append(errors, fmt.Sprintf("PHIRA_API_BASE must be an http(s) URL (got '%s')", cfg.PhiraAPIBase))
	}

	cfg.SecurityFile = getEnvOrDefault("SECURITY_FILE", "security.json")
	cfg.MonitorsFile = getEnvOrDefault("MONITORS_FILE", "monitors.txt")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	// GO_ENV drives the mode; DEVELOPMENT_MODE=true forces it regardless.
	cfg.DevelopmentMode = cfg.GoEnv == "development" || os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.RateLimitConnect = getEnvOrDefault("RATE_LIMIT_CONNECT", "30-M")
	cfg.RateLimitAdmin = getEnvOrDefault("RATE_LIMIT_ADMIN", "120-M")

	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	maxUsers := getEnvOrDefault("MAX_ROOM_USERS", "0")
	n, err := strconv.Atoi(maxUsers)
	if err != nil || n < 0 {
		errors = append(errors, fmt.Sprintf("MAX_ROOM_USERS must be a non-negative integer (got '%s')", maxUsers))
	} else {
		cfg.MaxRoomUsers = n
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// GameAddr returns the host:port the TCP game server listens on.
func (c *Config) GameAddr() string {
	return c.TCPHost + ":" + c.TCPPort
}

func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated")
	slog.Info("Configuration",
		"tcp_addr", cfg.GameAddr(),
		"admin_port", cfg.AdminPort,
		"admin_token", redactSecret(cfg.AdminToken),
		"phira_api_base", cfg.PhiraAPIBase,
		"security_file", cfg.SecurityFile,
		"monitors_file", cfg.MonitorsFile,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"rate_limit_connect", cfg.RateLimitConnect,
		"max_room_users", cfg.MaxRoomUsers,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 4 characters
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "***"
	}
	return secret[:4] + "***"
}
