package config

import (
	"os"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/portal")
	t.Cleanup(func() { os.Unsetenv("DATABASE_URL") })
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("expected default max conns 20, got %d", cfg.DBMaxConns)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("expected DATABASE_URL in error, got %v", err)
	}
}

func TestValidate_DevModeIsPermissive(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("dev mode should validate without secrets: %v", err)
	}
}

func TestValidate_ProductionRequiresAuth(t *testing.T) {
	cfg := &Config{Env: "production"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for production without AUTH_ISSUER")
	}
	if !strings.Contains(err.Error(), "AUTH_ISSUER") {
		t.Errorf("expected AUTH_ISSUER in error, got %v", err)
	}
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Env:        "production",
		AuthIssuer: "https://idp.example.com",
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "VIEW_TOKEN_SECRET") {
		t.Errorf("expected VIEW_TOKEN_SECRET error, got %v", err)
	}

	cfg.ViewTokenSecret = "short"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least 32 bytes") {
		t.Errorf("expected key length error, got %v", err)
	}

	cfg.ViewTokenSecret = strings.Repeat("k", 32)
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "PAYMENT_WEBHOOK_SECRET") {
		t.Errorf("expected PAYMENT_WEBHOOK_SECRET error, got %v", err)
	}

	cfg.PaymentWebhookSecret = "whsec"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "REGISTRY_BASE_URL") {
		t.Errorf("expected REGISTRY_BASE_URL error, got %v", err)
	}

	cfg.RegistryBaseURL = "https://registry.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid production config, got %v", err)
	}
}
