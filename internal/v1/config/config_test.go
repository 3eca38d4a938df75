package config

import (
	"os"
	"strings"
	"testing"
)

// clearEnv unsets every variable ValidateEnv reads so tests see a clean
// slate. t.Setenv registers the restore before the unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TCP_HOST", "TCP_PORT", "ADMIN_PORT", "ADMIN_TOKEN",
		"PHIRA_API_BASE", "SECURITY_FILE", "MONITORS_FILE",
		"GO_ENV", "LOG_LEVEL", "DEVELOPMENT_MODE", "ALLOWED_ORIGINS",
		"RATE_LIMIT_CONNECT", "RATE_LIMIT_ADMIN",
		"OTEL_COLLECTOR_ADDR", "MAX_ROOM_USERS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestValidateEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.GameAddr() != "0.0.0.0:12346" {
		t.Errorf("Expected default game addr '0.0.0.0:12346', got '%s'", cfg.GameAddr())
	}
	if cfg.AdminPort != "" {
		t.Errorf("Expected ADMIN_PORT to default to disabled, got '%s'", cfg.AdminPort)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("Expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.MaxRoomUsers != 0 {
		t.Errorf("Expected MAX_ROOM_USERS to default to 0, got %d", cfg.MaxRoomUsers)
	}
	if cfg.RateLimitConnect != "30-M" {
		t.Errorf("Expected RATE_LIMIT_CONNECT to default to '30-M', got '%s'", cfg.RateLimitConnect)
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	clearEnv(t)
	t.Setenv("TCP_HOST", "127.0.0.1")
	t.Setenv("TCP_PORT", "12000")
	t.Setenv("ADMIN_PORT", "8080")
	t.Setenv("PHIRA_API_BASE", "https://api.example.com")
	t.Setenv("DEVELOPMENT_MODE", "true")
	t.Setenv("MAX_ROOM_USERS", "8")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.GameAddr() != "127.0.0.1:12000" {
		t.Errorf("Expected game addr '127.0.0.1:12000', got '%s'", cfg.GameAddr())
	}
	if cfg.AdminPort != "8080" {
		t.Errorf("Expected ADMIN_PORT '8080', got '%s'", cfg.AdminPort)
	}
	if !cfg.DevelopmentMode {
		t.Errorf("Expected DEVELOPMENT_MODE to be true")
	}
	if cfg.MaxRoomUsers != 8 {
		t.Errorf("Expected MAX_ROOM_USERS 8, got %d", cfg.MaxRoomUsers)
	}
}

func TestValidateEnv_GoEnvDrivesDevelopmentMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("GO_ENV", "development")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cfg.DevelopmentMode {
		t.Errorf("Expected GO_ENV=development to enable development mode")
	}

	clearEnv(t)
	t.Setenv("GO_ENV", "production")
	t.Setenv("DEVELOPMENT_MODE", "true")

	cfg, err = ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !cfg.DevelopmentMode {
		t.Errorf("Expected DEVELOPMENT_MODE=true to force development mode")
	}
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("TCP_PORT", "99999")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for out-of-range TCP_PORT")
	}
	if !strings.Contains(err.Error(), "TCP_PORT") {
		t.Errorf("Expected error to mention TCP_PORT, got: %v", err)
	}
}

func TestValidateEnv_InvalidAPIBase(t *testing.T) {
	clearEnv(t)
	t.Setenv("PHIRA_API_BASE", "ftp://example.com")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for non-http PHIRA_API_BASE")
	}
}

func TestValidateEnv_CollectsMultipleErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("TCP_PORT", "bad")
	t.Setenv("ADMIN_PORT", "also-bad")
	t.Setenv("MAX_ROOM_USERS", "-1")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{"TCP_PORT", "ADMIN_PORT", "MAX_ROOM_USERS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected combined error to mention %s, got: %v", want, err)
		}
	}
}
