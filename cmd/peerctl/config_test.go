package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServiceConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
name = "ridge-peer"
listen_ip = "127.0.0.1"
listen_port = 0
root_ip = "127.0.0.1"
root_port = 6000
admin_addr = "127.0.0.1:8081"
admin_token = "summit-pass"
log_level = "warn"
reunion_interval = "5s"
reunion_timeout = "12s"
register_attempts = 3
`)

	cfg, logLevel, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "ridge-peer" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.ListenPort != 0 {
		t.Fatalf("unexpected listen_port: %d", cfg.ListenPort)
	}
	if cfg.RootIP != "127.0.0.1" || cfg.RootPort != 6000 {
		t.Fatalf("unexpected root endpoint: %s:%d", cfg.RootIP, cfg.RootPort)
	}
	if cfg.AdminToken != "summit-pass" {
		t.Fatalf("unexpected admin_token: %q", cfg.AdminToken)
	}
	if cfg.ReunionInterval != 5*time.Second || cfg.ReunionTimeout != 12*time.Second {
		t.Fatalf("unexpected reunion settings: %v / %v", cfg.ReunionInterval, cfg.ReunionTimeout)
	}
	if cfg.RegisterAttempts != 3 {
		t.Fatalf("unexpected register_attempts: %d", cfg.RegisterAttempts)
	}
	if logLevel != "warn" {
		t.Fatalf("unexpected log level: %q", logLevel)
	}
}

func TestLoadServiceConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
name = "ridge-peer"
`)

	cfg, _, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RootPort != 5000 {
		t.Fatalf("unexpected root_port: %d", cfg.RootPort)
	}
	if cfg.ReunionInterval != 20*time.Second || cfg.ReunionTimeout != 40*time.Second {
		t.Fatalf("unexpected reunion settings: %v / %v", cfg.ReunionInterval, cfg.ReunionTimeout)
	}
	if cfg.RegisterAttempts != 5 {
		t.Fatalf("unexpected register_attempts: %d", cfg.RegisterAttempts)
	}
}

func TestLoadServiceConfigRejectsZeroRootPort(t *testing.T) {
	path := writeConfig(t, `
root_port = 0
`)
	if _, _, err := loadServiceConfig(path); err == nil {
		t.Fatal("expected root_port error")
	}
}

func TestLoadServiceConfigRejectsBadAttempts(t *testing.T) {
	path := writeConfig(t, `
register_attempts = -1
`)
	if _, _, err := loadServiceConfig(path); err == nil {
		t.Fatal("expected register_attempts error")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
