package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gigmarket/backend/internal/config"
)

func TestLoad_EnvDefaults(t *testing.T) {
	t.Setenv("RELEASE_DELAY", "1h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Release.Delay != time.Hour {
		t.Errorf("release delay: got %v", cfg.Release.Delay)
	}
	if cfg.Release.SweepInterval != 15*time.Minute {
		t.Errorf("sweep interval: got %v", cfg.Release.SweepInterval)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins: got %v", cfg.CORSOrigins)
	}
}

func TestLoad_YAMLOverridesEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "port: \"7000\"\nrelease:\n  delay: 30m\nnotify:\n  workers: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7000" || cfg.Release.Delay != 30*time.Minute || cfg.Notify.Workers != 2 {
		t.Errorf("config: %+v", cfg)
	}
	if cfg.Notify.QueueSize != 256 {
		t.Errorf("unset yaml keys should keep defaults, queue size %d", cfg.Notify.QueueSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_InsecureJWTOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject the default secret in production")
	}
	cfg.JWTSecret = "a-real-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_ReleaseDelay(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	cfg, _ := config.Load("")
	cfg.Release.Delay = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero release delay")
	}
}
