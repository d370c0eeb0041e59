package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/treeline-net/treeline/internal/overlay"
)

// peerctl config.toml key mapping to peer runtime settings.
type fileConfig struct {
	Name             string `toml:"name"`
	ListenIP         string `toml:"listen_ip"`
	ListenPort       int    `toml:"listen_port"`
	RootIP           string `toml:"root_ip"`
	RootPort         int    `toml:"root_port"`
	AdminAddr        string `toml:"admin_addr"`
	AdminToken       string `toml:"admin_token"`
	LogLevel         string `toml:"log_level"`
	PollInterval     string `toml:"poll_interval"`
	ReunionInterval  string `toml:"reunion_interval"`
	ReunionTimeout   string `toml:"reunion_timeout"`
	RegisterAttempts int    `toml:"register_attempts"`
	ConnectTimeout   string `toml:"connect_timeout"`
	ReplyTimeout     string `toml:"reply_timeout"`
}

// loadServiceConfig overlays config.toml keys onto the runtime defaults.
// Only keys present in the file override. The log level is a binary
// concern and rides alongside the runtime config.
func loadServiceConfig(path string) (overlay.PeerConfig, string, error) {
	cfg := overlay.DefaultPeerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("listen_ip") {
		cfg.ListenIP = strings.TrimSpace(raw.ListenIP)
	}
	if meta.IsDefined("listen_port") {
		port, err := portValue(raw.ListenPort)
		if err != nil {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: listen_port: %w", err)
		}
		cfg.ListenPort = port
	}
	if meta.IsDefined("root_ip") {
		cfg.RootIP = strings.TrimSpace(raw.RootIP)
	}
	if meta.IsDefined("root_port") {
		port, err := portValue(raw.RootPort)
		if err != nil || port == 0 {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: root_port %d is not dialable", raw.RootPort)
		}
		cfg.RootPort = port
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("register_attempts") {
		if raw.RegisterAttempts <= 0 {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: register_attempts must be positive")
		}
		cfg.RegisterAttempts = raw.RegisterAttempts
	}
	if meta.IsDefined("poll_interval") {
		if cfg.PollInterval, err = durationValue(raw.PollInterval); err != nil {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: poll_interval: %w", err)
		}
	}
	if meta.IsDefined("reunion_interval") {
		if cfg.ReunionInterval, err = durationValue(raw.ReunionInterval); err != nil {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: reunion_interval: %w", err)
		}
	}
	if meta.IsDefined("reunion_timeout") {
		if cfg.ReunionTimeout, err = durationValue(raw.ReunionTimeout); err != nil {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: reunion_timeout: %w", err)
		}
	}
	if meta.IsDefined("connect_timeout") {
		if cfg.Transport.ConnectTimeout, err = durationValue(raw.ConnectTimeout); err != nil {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: connect_timeout: %w", err)
		}
	}
	if meta.IsDefined("reply_timeout") {
		if cfg.Transport.ReplyTimeout, err = durationValue(raw.ReplyTimeout); err != nil {
			return overlay.PeerConfig{}, "", fmt.Errorf("load peer config: reply_timeout: %w", err)
		}
	}

	return cfg, strings.TrimSpace(raw.LogLevel), nil
}

func portValue(v int) (uint16, error) {
	if v < 0 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range", v)
	}
	return uint16(v), nil
}

func durationValue(raw string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(raw))
}
