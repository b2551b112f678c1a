//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
server:
  hmac_secret: "test-secret"
database:
  url: "postgres://localhost:5432/upgrades"
redis:
  url: "localhost:6379"
gateway:
  base_url: "https://payments.example.com"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults over a minimal config", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, minimalYAML), false)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Confirm.PollInterval != 5*time.Second {
			t.Errorf("expected default poll interval 5s, got %s", cfg.Confirm.PollInterval)
		}
		if cfg.Confirm.RedirectDelay != time.Second {
			t.Errorf("expected default redirect delay 1s, got %s", cfg.Confirm.RedirectDelay)
		}
		if cfg.Confirm.MaxPollChecks != 0 {
			t.Errorf("expected polling unbounded by default, got %d", cfg.Confirm.MaxPollChecks)
		}
		if cfg.Reconciler.BatchSize != 200 {
			t.Errorf("expected default reconciler batch size 200, got %d", cfg.Reconciler.BatchSize)
		}
	})

	t.Run("should reject a config without required secrets", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `
database:
  url: "postgres://localhost:5432/upgrades"
redis:
  url: "localhost:6379"
gateway:
  base_url: "https://payments.example.com"
`), false)
		if err == nil {
			t.Fatal("expected an error for a missing hmac secret")
		}
	})

	t.Run("should carry the dev flag", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, minimalYAML), true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev runtime flag to be set")
		}
	})
}
