package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/treeline-net/treeline/internal/overlay"
)

// RootRuntime maps a loaded file config onto the root runtime settings.
// Keys the file leaves empty keep their runtime defaults.
func RootRuntime(cfg RootConfig) (overlay.RootConfig, error) {
	out := overlay.DefaultRootConfig()
	out.Name = cfg.Name
	out.ListenIP = cfg.ListenIP
	out.ListenPort = uint16(cfg.ListenPort)
	out.AdminListenAddr = cfg.AdminAddr
	out.AdminToken = cfg.AdminToken

	var err error
	if out.PollInterval, err = durationOr(cfg.PollInterval, out.PollInterval); err != nil {
		return overlay.RootConfig{}, fmt.Errorf("root config poll_interval: %w", err)
	}
	if out.StaleAfter, err = durationOr(cfg.StaleAfter, out.StaleAfter); err != nil {
		return overlay.RootConfig{}, fmt.Errorf("root config stale_after: %w", err)
	}
	if out.Transport.ConnectTimeout, err = durationOr(cfg.ConnectTimeout, out.Transport.ConnectTimeout); err != nil {
		return overlay.RootConfig{}, fmt.Errorf("root config connect_timeout: %w", err)
	}
	if out.Transport.ReplyTimeout, err = durationOr(cfg.ReplyTimeout, out.Transport.ReplyTimeout); err != nil {
		return overlay.RootConfig{}, fmt.Errorf("root config reply_timeout: %w", err)
	}
	return out, nil
}

// PeerRuntime maps a loaded file config onto the peer runtime settings.
func PeerRuntime(cfg PeerConfig) (overlay.PeerConfig, error) {
	out := overlay.DefaultPeerConfig()
	out.Name = cfg.Name
	out.ListenIP = cfg.ListenIP
	out.ListenPort = uint16(cfg.ListenPort)
	out.RootIP = cfg.RootIP
	out.RootPort = uint16(cfg.RootPort)
	out.AdminListenAddr = cfg.AdminAddr
	out.AdminToken = cfg.AdminToken
	if cfg.RegisterAttempts > 0 {
		out.RegisterAttempts = cfg.RegisterAttempts
	}

	var err error
	if out.PollInterval, err = durationOr(cfg.PollInterval, out.PollInterval); err != nil {
		return overlay.PeerConfig{}, fmt.Errorf("peer config poll_interval: %w", err)
	}
	if out.ReunionInterval, err = durationOr(cfg.ReunionInterval, out.ReunionInterval); err != nil {
		return overlay.PeerConfig{}, fmt.Errorf("peer config reunion_interval: %w", err)
	}
	if out.ReunionTimeout, err = durationOr(cfg.ReunionTimeout, out.ReunionTimeout); err != nil {
		return overlay.PeerConfig{}, fmt.Errorf("peer config reunion_timeout: %w", err)
	}
	if out.Transport.ConnectTimeout, err = durationOr(cfg.ConnectTimeout, out.Transport.ConnectTimeout); err != nil {
		return overlay.PeerConfig{}, fmt.Errorf("peer config connect_timeout: %w", err)
	}
	if out.Transport.ReplyTimeout, err = durationOr(cfg.ReplyTimeout, out.Transport.ReplyTimeout); err != nil {
		return overlay.PeerConfig{}, fmt.Errorf("peer config reply_timeout: %w", err)
	}
	return out, nil
}

func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return time.ParseDuration(strings.TrimSpace(raw))
}
