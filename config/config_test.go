package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Payments.AutoApproveAfter != 14*24*time.Hour {
		t.Errorf("auto approve after = %v", cfg.Payments.AutoApproveAfter)
	}
	if cfg.JWT.Secret == "" {
		t.Error("development config should fall back to a dev secret")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte("server:\n  port: \"9000\"\njwt:\n  secret: from-yaml\n  expiration: 2h\noutbox:\n  batch_size: 7\n")
	if err := os.WriteFile(path, yamlBody, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("env should win over yaml, got port %q", cfg.Server.Port)
	}
	if cfg.JWT.Secret != "from-yaml" || cfg.JWT.Expiration != 2*time.Hour {
		t.Errorf("jwt = %+v", cfg.JWT)
	}
	if cfg.Outbox.BatchSize != 7 || cfg.Outbox.MaxRetries != 5 {
		t.Errorf("outbox = %+v", cfg.Outbox)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestValidateRequiresSecretInProduction(t *testing.T) {
	cfg := Default()
	cfg.Server.Env = "production"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty secret in production")
	}
	cfg.JWT.Secret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReceiptSecretSeparateFromJWT(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "jwt-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Receipts.Secret == "" || cfg.Receipts.Secret == cfg.JWT.Secret {
		t.Fatalf("receipt secret = %q, want a key distinct from the jwt secret", cfg.Receipts.Secret)
	}
	again := Default()
	again.JWT.Secret = "jwt-secret"
	_ = again.Validate()
	if again.Receipts.Secret != cfg.Receipts.Secret {
		t.Error("derived receipt secret should be stable across restarts")
	}

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("RECEIPT_SECRET", "receipt-only")
	loaded, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Receipts.Secret != "receipt-only" {
		t.Errorf("RECEIPT_SECRET ignored, got %q", loaded.Receipts.Secret)
	}
}
