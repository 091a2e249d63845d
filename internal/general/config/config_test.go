package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
database:
  user: tracker
  password: secret
  database: deliveries
broker:
  user: guest
  password: guest
`

func TestLoadFromFileDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Broker.Host != "localhost" || cfg.Broker.Port != 5672 {
		t.Errorf("broker defaults not applied: %s:%d", cfg.Broker.Host, cfg.Broker.Port)
	}
	if got := cfg.PollInterval(); got != 40*time.Second {
		t.Errorf("PollInterval() = %v, want 40s", got)
	}
	if got := cfg.InterpolationMin(); got != 2*time.Second {
		t.Errorf("InterpolationMin() = %v, want 2s", got)
	}
	if got := cfg.InterpolationMax(); got != 8*time.Second {
		t.Errorf("InterpolationMax() = %v, want 8s", got)
	}
	if cfg.Tracking.FallbackSpeedKmh != 25 {
		t.Errorf("fallback speed = %v, want 25", cfg.Tracking.FallbackSpeedKmh)
	}
	if got := cfg.ReconnectMaxDelay(); got != 30*time.Second {
		t.Errorf("ReconnectMaxDelay() = %v, want 30s", got)
	}
}

func TestLoadFromFileOverrides(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
tracking:
  poll_interval_ms: 5000
  silence_threshold_ms: 9000
  interpolation_min_ms: 1000
  interpolation_max_ms: 4000
`))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if got := cfg.PollInterval(); got != 5*time.Second {
		t.Errorf("PollInterval() = %v, want 5s", got)
	}
	if got := cfg.SilenceThreshold(); got != 9*time.Second {
		t.Errorf("SilenceThreshold() = %v, want 9s", got)
	}
	if got := cfg.InterpolationMax(); got != 4*time.Second {
		t.Errorf("InterpolationMax() = %v, want 4s", got)
	}
}

func TestLoadFromFileRejectsMissingCredentials(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
broker:
  user: guest
  password: guest
`))
	if err == nil {
		t.Fatal("expected validation error for missing database credentials")
	}
}

func TestLoadFromFileRejectsInvertedWindow(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, minimalConfig+`
tracking:
  interpolation_min_ms: 5000
  interpolation_max_ms: 2000
`))
	if err == nil {
		t.Fatal("expected error for interpolation_max_ms < interpolation_min_ms")
	}
}
