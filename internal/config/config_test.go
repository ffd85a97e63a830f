package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.com/ws
  token: secret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.Mode != "desktop" {
		t.Errorf("mode = %q", cfg.Client.Mode)
	}
	if cfg.Reconnect.IntervalSeconds != 5 || cfg.Reconnect.MaxAttempts != 10 {
		t.Errorf("reconnect defaults = %+v", cfg.Reconnect)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if got := cfg.ReconnectInterval(); got != 5*time.Second {
		t.Errorf("interval = %s", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://file.example.com/ws
  token: file-token
`)
	t.Setenv("CLAWLINK_GATEWAY_URL", "wss://env.example.com/ws")
	t.Setenv("CLAWLINK_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.URL != "wss://env.example.com/ws" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Token != "env-token" {
		t.Errorf("token = %q", cfg.Gateway.Token)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidateRequiresGateway(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.com/ws
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "gateway.token") {
		t.Fatalf("want token validation error, got %v", err)
	}
}

func TestValidateRejectsNegativeReconnect(t *testing.T) {
	path := writeConfig(t, `
gateway:
  url: wss://gw.example.com/ws
  token: secret
reconnect:
  interval_seconds: -1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative interval")
	}
}
