package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_DATABASE_URL", "postgres://u:p@db:5432/quiz")
	t.Setenv("TEST_JWT_SECRET", "topsecret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
app:
  frontend_base_url: https://quiz.example.com
postgres:
  url: ${TEST_DATABASE_URL}
auth:
  jwt_secret: ${TEST_JWT_SECRET}
  access_ttl: 5m
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "postgres://u:p@db:5432/quiz" {
		t.Fatalf("postgres url not expanded: %q", cfg.Postgres.URL)
	}
	if cfg.Auth.JWTSecret != "topsecret" {
		t.Fatalf("jwt secret not expanded: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Quiz.SelectionSize != 5 {
		t.Fatalf("expected default selection size 5, got %d", cfg.Quiz.SelectionSize)
	}
	if cfg.Certificates.VerifyBaseURL != "https://quiz.example.com/certificates/verify" {
		t.Fatalf("unexpected verify url %q", cfg.Certificates.VerifyBaseURL)
	}
	if got := TTLDuration(cfg.Auth.AccessTTL, time.Hour); got != 5*time.Minute {
		t.Fatalf("expected 5m access ttl, got %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty value, got %s", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for invalid value, got %s", got)
	}
}
