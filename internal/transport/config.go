package transport

import (
	"time"

	"github.com/danmuck/ircctl/internal/protocol/line"
)

const DefaultPort = "6667"

// Config defines transport timeouts and limits. Zero timeouts disable the
// corresponding deadline.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Limits         line.Limits
}

// DefaultConfig returns the transport defaults: bounded connect, no I/O deadlines.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		Limits:         line.DefaultLimits(),
	}
}

// WithDefaults fills unset limits and a negative or zero connect timeout.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.Limits.MaxLineBytes <= 0 {
		c.Limits = d.Limits
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	return c
}
