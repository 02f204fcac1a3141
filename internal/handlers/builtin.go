package handlers

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
)

var ErrUnknownBuiltin = errors.New("handlers: unknown builtin")

// Source marks records built from this package.
const Source = "builtin"

// DefaultBuiltins keep the connection alive and join the channel.
var DefaultBuiltins = []string{"pong", "autojoin"}

// Options configures builtin construction.
type Options struct {
	QuitTrigger string
	Rules       []Rule
}

type constructor func(Options) ([]plugins.Handler, error)

var builtins = map[string]constructor{
	"pong":     func(Options) ([]plugins.Handler, error) { return []plugins.Handler{Pong()}, nil },
	"autojoin": func(Options) ([]plugins.Handler, error) {
		var out []plugins.Handler
		for _, h := range NewAutoJoin() {
			out = append(out, h)
		}
		return out, nil
	},
	"quit": func(o Options) ([]plugins.Handler, error) {
		return []plugins.Handler{NewQuit(o.QuitTrigger)}, nil
	},
	"karma": func(Options) ([]plugins.Handler, error) { return []plugins.Handler{NewKarma()}, nil },
	"rules": func(o Options) ([]plugins.Handler, error) { return CompileRules(o.Rules) },
}

// Names lists the selectable builtins.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Build constructs the named builtins in the given order. Blank names and
// "none" are ignored; repeats are built once.
func Build(names []string, opts Options) ([]plugins.Record, error) {
	seen := make(map[string]struct{})
	var out []plugins.Record
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || name == "none" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		build, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, name)
		}
		handlers, err := build(opts)
		if err != nil {
			return nil, fmt.Errorf("handlers: build %s: %w", name, err)
		}
		for i, h := range handlers {
			rec := plugins.Record{Name: name, Source: Source, Handler: h}
			if len(handlers) > 1 {
				rec.Name = fmt.Sprintf("%s[%d]", name, i)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// replyTarget answers in the channel a message arrived on, or privately to
// the sender when it was addressed to the bot.
func replyTarget(env *plugins.Env, msg protocol.Message) string {
	target := msg.Target()
	if target != "" && strings.ContainsRune("#&+!", rune(target[0])) {
		return target
	}
	if nick := msg.Nick(); nick != "" {
		return nick
	}
	return env.Identity.Channel
}
