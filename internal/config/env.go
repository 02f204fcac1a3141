package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/store"
)

// envOverrides uses pointers so unset variables leave the config alone.
type envOverrides struct {
	Address        *string        `env:"IRCCTL_ADDRESS"`
	Channel        *string        `env:"IRCCTL_CHANNEL"`
	Nick           *string        `env:"IRCCTL_NICK"`
	Owner          *string        `env:"IRCCTL_OWNER"`
	PluginDir      *string        `env:"IRCCTL_PLUGIN_DIR"`
	Builtins       []string       `env:"IRCCTL_BUILTINS" envSeparator:","`
	MaxPlugins     *int           `env:"IRCCTL_MAX_PLUGINS"`
	MaxResponses   *int           `env:"IRCCTL_MAX_RESPONSES"`
	SkipMalformed  *bool          `env:"IRCCTL_SKIP_MALFORMED"`
	ReadTimeout    *time.Duration `env:"IRCCTL_READ_TIMEOUT"`
	WriteTimeout   *time.Duration `env:"IRCCTL_WRITE_TIMEOUT"`
	ConnectTimeout *time.Duration `env:"IRCCTL_CONNECT_TIMEOUT"`
	MetricsAddr    *string        `env:"IRCCTL_METRICS_ADDR"`
	QuitTrigger    *string        `env:"IRCCTL_QUIT_TRIGGER"`
	StoreKind      *string        `env:"IRCCTL_STORE_KIND"`
	StorePath      *string        `env:"IRCCTL_STORE_PATH"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyEnv overlays IRCCTL_* environment variables onto cfg.
func ApplyEnv(cfg *engine.ServiceConfig) error {
	var o envOverrides
	if err := ParseEnv(&o); err != nil {
		return err
	}
	setString(&cfg.Address, o.Address)
	setString(&cfg.Channel, o.Channel)
	setString(&cfg.Nick, o.Nick)
	setString(&cfg.Owner, o.Owner)
	setString(&cfg.PluginDir, o.PluginDir)
	setString(&cfg.MetricsAddr, o.MetricsAddr)
	setString(&cfg.QuitTrigger, o.QuitTrigger)
	setString(&cfg.Store.Path, o.StorePath)
	if o.StoreKind != nil {
		cfg.Store.Kind = store.Kind(strings.ToLower(strings.TrimSpace(*o.StoreKind)))
	}
	if o.Builtins != nil {
		cfg.Builtins = normalizeList(o.Builtins)
	}
	if o.MaxPlugins != nil {
		cfg.MaxPlugins = *o.MaxPlugins
	}
	if o.MaxResponses != nil {
		cfg.MaxResponses = *o.MaxResponses
	}
	if o.SkipMalformed != nil {
		cfg.SkipMalformed = *o.SkipMalformed
	}
	if o.ReadTimeout != nil {
		cfg.Transport.ReadTimeout = *o.ReadTimeout
	}
	if o.WriteTimeout != nil {
		cfg.Transport.WriteTimeout = *o.WriteTimeout
	}
	if o.ConnectTimeout != nil {
		cfg.Transport.ConnectTimeout = *o.ConnectTimeout
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
