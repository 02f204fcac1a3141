package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/handlers"
	"github.com/danmuck/ircctl/internal/store"
)

type fileConfig struct {
	Address        string     `toml:"address"`
	Channel        string     `toml:"channel"`
	Nick           string     `toml:"nick"`
	Owner          string     `toml:"owner"`
	PluginDir      string     `toml:"plugin_dir"`
	Builtins       []string   `toml:"builtins"`
	MaxPlugins     int        `toml:"max_plugins"`
	MaxResponses   int        `toml:"max_responses"`
	SkipMalformed  bool       `toml:"skip_malformed"`
	ReadTimeout    string     `toml:"read_timeout"`
	WriteTimeout   string     `toml:"write_timeout"`
	ConnectTimeout string     `toml:"connect_timeout"`
	ProcessGrace   string     `toml:"process_grace"`
	MetricsAddr    string     `toml:"metrics_addr"`
	QuitTrigger    string     `toml:"quit_trigger"`
	Store          fileStore  `toml:"store"`
	Rules          []fileRule `toml:"rules"`
}

type fileStore struct {
	Kind string `toml:"kind"`
	Path string `toml:"path"`
}

type fileRule struct {
	Command string `toml:"command"`
	When    string `toml:"when"`
	Reply   string `toml:"reply"`
}

// Load overlays the keys defined in the TOML file at path onto
// engine.DefaultServiceConfig. It does not validate.
func Load(path string) (engine.ServiceConfig, error) {
	cfg := engine.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return engine.ServiceConfig{}, fmt.Errorf("load ircctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return engine.ServiceConfig{}, fmt.Errorf("load ircctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("channel") {
		cfg.Channel = strings.TrimSpace(raw.Channel)
	}
	if meta.IsDefined("nick") {
		cfg.Nick = strings.TrimSpace(raw.Nick)
	}
	if meta.IsDefined("owner") {
		cfg.Owner = strings.TrimSpace(raw.Owner)
	}
	if meta.IsDefined("plugin_dir") {
		cfg.PluginDir = strings.TrimSpace(raw.PluginDir)
	}
	if meta.IsDefined("builtins") {
		cfg.Builtins = normalizeList(raw.Builtins)
	}
	if meta.IsDefined("max_plugins") {
		cfg.MaxPlugins = raw.MaxPlugins
	}
	if meta.IsDefined("max_responses") {
		cfg.MaxResponses = raw.MaxResponses
	}
	if meta.IsDefined("skip_malformed") {
		cfg.SkipMalformed = raw.SkipMalformed
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("quit_trigger") {
		cfg.QuitTrigger = strings.TrimSpace(raw.QuitTrigger)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.Transport.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Transport.WriteTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Transport.ConnectTimeout},
		{"process_grace", raw.ProcessGrace, &cfg.ProcessGrace},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return engine.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("store", "kind") {
		cfg.Store.Kind = store.Kind(strings.ToLower(strings.TrimSpace(raw.Store.Kind)))
	}
	if meta.IsDefined("store", "path") {
		cfg.Store.Path = strings.TrimSpace(raw.Store.Path)
	}

	if meta.IsDefined("rules") {
		cfg.Rules = make([]handlers.Rule, 0, len(raw.Rules))
		for _, r := range raw.Rules {
			cfg.Rules = append(cfg.Rules, handlers.Rule{
				Command: strings.TrimSpace(r.Command),
				When:    r.When,
				Reply:   r.Reply,
			})
		}
	}
	return cfg, nil
}

// Validate checks cfg as a whole, including that every builtin and rule
// can be constructed.
func Validate(cfg engine.ServiceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.Store.Kind {
	case store.KindFile, store.KindSQLite, store.KindNone, "":
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownKind, cfg.Store.Kind)
	}
	if cfg.Store.Kind == store.KindSQLite && strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("store path is required for sqlite")
	}
	if _, err := handlers.Build(cfg.Builtins, handlers.Options{QuitTrigger: cfg.QuitTrigger, Rules: cfg.Rules}); err != nil {
		return err
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
