package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/ircctl/internal/engine"
	"github.com/danmuck/ircctl/internal/handlers"
	"github.com/danmuck/ircctl/internal/store"
	"github.com/danmuck/ircctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected existing config to be kept")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address != "irc.libera.chat:6667" || cfg.Channel != "#ircctl" || cfg.Nick != "ircctl" {
		t.Fatalf("unexpected identity: %+v", cfg)
	}
	if cfg.PluginDir != "plugins" {
		t.Fatalf("unexpected plugin dir: %q", cfg.PluginDir)
	}
	if diff := cmp.Diff([]string{"pong", "autojoin", "quit", "karma", "rules"}, cfg.Builtins); diff != "" {
		t.Fatalf("builtins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Transport.ConnectTimeout != 10*time.Second || cfg.Transport.WriteTimeout != 10*time.Second || cfg.Transport.ReadTimeout != 0 {
		t.Fatalf("unexpected timeouts: %+v", cfg.Transport)
	}
	if cfg.Store.Kind != store.KindFile || cfg.Store.Path != "karma.txt" {
		t.Fatalf("unexpected store: %+v", cfg.Store)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[1].Command != "JOIN" {
		t.Fatalf("unexpected rules: %+v", cfg.Rules)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("template should validate: %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, `
address = "localhost"
max_responses = 4

[store]
kind = "SQLite"
path = "counters.db"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := engine.DefaultServiceConfig()
	if cfg.Address != "localhost" || cfg.MaxResponses != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxPlugins != def.MaxPlugins || cfg.QuitTrigger != handlers.DefaultQuitTrigger {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if diff := cmp.Diff(def.Builtins, cfg.Builtins); diff != "" {
		t.Fatalf("builtins changed (-want +got):\n%s", diff)
	}
	if cfg.Store.Kind != store.KindSQLite || cfg.Store.Path != "counters.db" {
		t.Fatalf("unexpected store: %+v", cfg.Store)
	}
}

func TestLoadErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(writeConfig(t, `read_timeout = "abc"`)); err == nil {
		t.Fatalf("expected duration parse error")
	}
	if _, err := Load(writeConfig(t, `adress = "typo"`)); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if _, err := Load(writeConfig(t, `address = [`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, `
address = "from-file"
nick = "filebot"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Setenv("IRCCTL_ADDRESS", " irc.env.example:7000 ")
	t.Setenv("IRCCTL_BUILTINS", "pong, karma")
	t.Setenv("IRCCTL_MAX_RESPONSES", "3")
	t.Setenv("IRCCTL_SKIP_MALFORMED", "true")
	t.Setenv("IRCCTL_READ_TIMEOUT", "90s")
	t.Setenv("IRCCTL_STORE_KIND", "NONE")

	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Address != "irc.env.example:7000" {
		t.Fatalf("env should beat file: %q", cfg.Address)
	}
	if cfg.Nick != "filebot" {
		t.Fatalf("unset env must keep file value: %q", cfg.Nick)
	}
	if diff := cmp.Diff([]string{"pong", "karma"}, cfg.Builtins); diff != "" {
		t.Fatalf("builtins mismatch (-want +got):\n%s", diff)
	}
	if cfg.MaxResponses != 3 || !cfg.SkipMalformed || cfg.Transport.ReadTimeout != 90*time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Store.Kind != store.KindNone {
		t.Fatalf("unexpected store kind: %q", cfg.Store.Kind)
	}

	t.Setenv("IRCCTL_MAX_PLUGINS", "lots")
	if err := ApplyEnv(&cfg); err == nil {
		t.Fatalf("expected bad integer to fail")
	}
}

func TestValidateRejects(t *testing.T) {
	testlog.Start(t)
	base := engine.DefaultServiceConfig()
	base.Address, base.Channel, base.Nick = "irc.example.net", "#c", "bot"
	if err := Validate(base); err != nil {
		t.Fatalf("base should validate: %v", err)
	}

	missing := base
	missing.Nick = ""
	if err := Validate(missing); !errors.Is(err, engine.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	badStore := base
	badStore.Store = store.Config{Kind: "redis"}
	if err := Validate(badStore); !errors.Is(err, store.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	sqliteNoPath := base
	sqliteNoPath.Store = store.Config{Kind: store.KindSQLite}
	if err := Validate(sqliteNoPath); err == nil {
		t.Fatalf("expected sqlite without path to fail")
	}

	badRule := base
	badRule.Builtins = []string{"rules"}
	badRule.Rules = []handlers.Rule{{Command: "PRIVMSG", When: "text ==", Reply: "PONG :x"}}
	if err := Validate(badRule); !errors.Is(err, handlers.ErrRule) {
		t.Fatalf("expected ErrRule, got %v", err)
	}

	unknown := base
	unknown.Builtins = []string{"greeter"}
	if err := Validate(unknown); !errors.Is(err, handlers.ErrUnknownBuiltin) {
		t.Fatalf("expected ErrUnknownBuiltin, got %v", err)
	}
}
