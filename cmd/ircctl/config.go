package main

import (
	"flag"
	"os"
	"strings"

	"github.com/danmuck/ircctl/internal/config"
	"github.com/danmuck/ircctl/internal/engine"
)

type options struct {
	configPath string
	address    string
	channel    string
	nick       string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("ircctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to TOML config")
	fs.StringVar(&opts.address, "a", "", "server address (host:port)")
	fs.StringVar(&opts.channel, "c", "", "channel to join")
	fs.StringVar(&opts.nick, "n", "", "nickname")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// loadServiceConfig layers defaults, the optional config file, IRCCTL_*
// variables, then flags, and validates the result.
func loadServiceConfig(opts options) (engine.ServiceConfig, error) {
	cfg := engine.DefaultServiceConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return engine.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return engine.ServiceConfig{}, err
	}

	if v := strings.TrimSpace(opts.address); v != "" {
		cfg.Address = v
	}
	if v := strings.TrimSpace(opts.channel); v != "" {
		cfg.Channel = v
	}
	if v := strings.TrimSpace(opts.nick); v != "" {
		cfg.Nick = v
	}

	if err := config.Validate(cfg); err != nil {
		return engine.ServiceConfig{}, err
	}
	return cfg, nil
}
