package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RootConfig is the root node config.toml schema. Interval keys hold
// time.ParseDuration strings; empty keys fall back to runtime defaults.
type RootConfig struct {
	Name           string `toml:"name"`
	ListenIP       string `toml:"listen_ip"`
	ListenPort     int    `toml:"listen_port"`
	AdminAddr      string `toml:"admin_addr"`
	AdminToken     string `toml:"admin_token"`
	LogLevel       string `toml:"log_level"`
	PollInterval   string `toml:"poll_interval"`
	StaleAfter     string `toml:"stale_after"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReplyTimeout   string `toml:"reply_timeout"`
}

// PeerConfig is the peer node config.toml schema. listen_port 0 binds an
// ephemeral port.
type PeerConfig struct {
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

func LoadRootConfig(path string) (RootConfig, error) {
	var cfg RootConfig
	if err := loadToml(path, &cfg); err != nil {
		return RootConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "root.local"
	}
	if cfg.ListenIP == "" {
		cfg.ListenIP = "127.0.0.1"
	}
	if err := ValidateRootConfig(cfg); err != nil {
		return RootConfig{}, err
	}
	return cfg, nil
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	var cfg PeerConfig
	if err := loadToml(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "peer.local"
	}
	if cfg.ListenIP == "" {
		cfg.ListenIP = "127.0.0.1"
	}
	if cfg.RootIP == "" {
		cfg.RootIP = "127.0.0.1"
	}
	if cfg.RootPort == 0 {
		cfg.RootPort = 5000
	}
	if err := ValidatePeerConfig(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRootConfig(cfg RootConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("root config missing name")
	}
	if err := validateIPv4(cfg.ListenIP); err != nil {
		return fmt.Errorf("root config listen_ip: %w", err)
	}
	if err := validatePort(cfg.ListenPort); err != nil {
		return fmt.Errorf("root config listen_port: %w", err)
	}
	if err := validateDurations(map[string]string{
		"poll_interval":   cfg.PollInterval,
		"stale_after":     cfg.StaleAfter,
		"connect_timeout": cfg.ConnectTimeout,
		"reply_timeout":   cfg.ReplyTimeout,
	}); err != nil {
		return fmt.Errorf("root config %w", err)
	}
	return nil
}

func ValidatePeerConfig(cfg PeerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("peer config missing name")
	}
	if err := validateIPv4(cfg.ListenIP); err != nil {
		return fmt.Errorf("peer config listen_ip: %w", err)
	}
	if err := validatePort(cfg.ListenPort); err != nil {
		return fmt.Errorf("peer config listen_port: %w", err)
	}
	if err := validateIPv4(cfg.RootIP); err != nil {
		return fmt.Errorf("peer config root_ip: %w", err)
	}
	if err := validatePort(cfg.RootPort); err != nil {
		return fmt.Errorf("peer config root_port: %w", err)
	}
	if cfg.RootPort == 0 {
		return fmt.Errorf("peer config root_port is required")
	}
	if cfg.RegisterAttempts < 0 {
		return fmt.Errorf("peer config register_attempts must not be negative")
	}
	if err := validateDurations(map[string]string{
		"poll_interval":    cfg.PollInterval,
		"reunion_interval": cfg.ReunionInterval,
		"reunion_timeout":  cfg.ReunionTimeout,
		"connect_timeout":  cfg.ConnectTimeout,
		"reply_timeout":    cfg.ReplyTimeout,
	}); err != nil {
		return fmt.Errorf("peer config %w", err)
	}
	return nil
}

func validateIPv4(raw string) error {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("%q is not an IPv4 address", raw)
	}
	return nil
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}

func validateDurations(fields map[string]string) error {
	for key, raw := range fields {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
