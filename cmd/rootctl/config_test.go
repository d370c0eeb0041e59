package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServiceConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
name = "ridge-root"
listen_ip = "127.0.0.1"
listen_port = 6000
admin_addr = "127.0.0.1:8080"
admin_token = "summit-pass"
log_level = "debug"
poll_interval = "50ms"
stale_after = "30s"
connect_timeout = "1s"
reply_timeout = "2s"
`)

	cfg, logLevel, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "ridge-root" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.ListenPort != 6000 {
		t.Fatalf("unexpected listen_port: %d", cfg.ListenPort)
	}
	if cfg.AdminListenAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected admin_addr: %q", cfg.AdminListenAddr)
	}
	if cfg.AdminToken != "summit-pass" {
		t.Fatalf("unexpected admin_token: %q", cfg.AdminToken)
	}
	if cfg.PollInterval != 50*time.Millisecond || cfg.StaleAfter != 30*time.Second {
		t.Fatalf("unexpected intervals: %v / %v", cfg.PollInterval, cfg.StaleAfter)
	}
	if cfg.Transport.ConnectTimeout != time.Second || cfg.Transport.ReplyTimeout != 2*time.Second {
		t.Fatalf("unexpected transport timeouts: %+v", cfg.Transport)
	}
	if logLevel != "debug" {
		t.Fatalf("unexpected log level: %q", logLevel)
	}
}

func TestLoadServiceConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
name = "ridge-root"
`)

	cfg, logLevel, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenPort != 5000 {
		t.Fatalf("unexpected listen_port: %d", cfg.ListenPort)
	}
	if cfg.PollInterval != 200*time.Millisecond {
		t.Fatalf("unexpected poll_interval: %v", cfg.PollInterval)
	}
	if cfg.StaleAfter != 90*time.Second {
		t.Fatalf("unexpected stale_after: %v", cfg.StaleAfter)
	}
	if logLevel != "" {
		t.Fatalf("unexpected log level: %q", logLevel)
	}
}

func TestLoadServiceConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `
poll_interval = "fast"
`)
	if _, _, err := loadServiceConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadServiceConfigBadPort(t *testing.T) {
	path := writeConfig(t, `
listen_port = 70000
`)
	if _, _, err := loadServiceConfig(path); err == nil {
		t.Fatal("expected range error")
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
