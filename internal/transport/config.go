package transport

import (
	"time"

	"github.com/treeline-net/treeline/internal/protocol"
)

// Config defines transport reliability defaults.
type Config struct {
	ConnectTimeout time.Duration
	ReplyTimeout   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Limits         protocol.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 3 * time.Second,
		ReplyTimeout:   5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Limits:         protocol.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = def.ReplyTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Limits.MaxBodyBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}
