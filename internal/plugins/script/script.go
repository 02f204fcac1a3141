// Package script loads command handlers written in Lua.
//
// A script is a plugin when, after running its top-level chunk, it defines
// a global string `command` and a global function `create_response(msg)`.
// Optional globals `initialize()` and `close()` are called at start and
// shutdown. create_response returns a list of replies (tables with prefix,
// command, params, or raw line strings) and an optional boolean asking the
// bot to stop.
package script

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
)

const Suffix = ".lua"

const (
	globalCommand  = "command"
	globalRespond  = "create_response"
	globalInit     = "initialize"
	globalClose    = "close"
	globalBotTable = "bot"
)

var (
	ErrScript = errors.New("script: runtime error")
	ErrReply  = errors.New("script: malformed reply")
	ErrClosed = errors.New("script: unit closed")
)

// Loader opens .lua units.
type Loader struct{}

func (Loader) Suffix() string { return Suffix }

func (Loader) Load(path string) (plugins.Record, error) {
	p, err := Open(path)
	if err != nil {
		return plugins.Record{}, err
	}
	return plugins.Record{Source: path, Handler: p, Unit: p}, nil
}

// Plugin is one loaded script. Calls are serialized.
type Plugin struct {
	mu      sync.Mutex
	path    string
	state   *lua.State
	command string
	env     *plugins.Env
}

// Open runs the script at path and resolves its exports.
func Open(path string) (*Plugin, error) {
	p := &Plugin{path: path, state: lua.NewState()}
	l := p.state
	lua.OpenLibraries(l)
	p.installBot()

	if err := lua.LoadFile(l, path, ""); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", plugins.ErrLoad, path, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", plugins.ErrLoad, path, err)
	}

	l.Global(globalCommand)
	cmd, ok := "", l.TypeOf(-1) == lua.TypeString
	if ok {
		cmd, _ = l.ToString(-1)
	}
	l.Pop(1)
	if !ok || cmd == "" {
		return nil, fmt.Errorf("%w: %s: no %s string", plugins.ErrNotPlugin, path, globalCommand)
	}
	if !p.hasFunction(globalRespond) {
		return nil, fmt.Errorf("%w: %s: no %s function", plugins.ErrNotPlugin, path, globalRespond)
	}
	p.command = cmd
	return p, nil
}

func (p *Plugin) Command() string { return p.command }

func (p *Plugin) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return plugins.Reply{}, ErrClosed
	}
	p.env = env
	l := p.state
	top := l.Top()
	defer l.SetTop(top)

	l.Global(globalRespond)
	pushMessage(l, msg)
	if err := l.ProtectedCall(1, 2, 0); err != nil {
		return plugins.Reply{}, fmt.Errorf("%w: %s: %v", ErrScript, globalRespond, err)
	}
	stop := l.ToBoolean(-1)
	msgs, err := readReplies(l, l.AbsIndex(-2))
	if err != nil {
		return plugins.Reply{}, err
	}
	return plugins.Reply{Messages: msgs, Stop: stop}, nil
}

// Start calls the script's initialize function if present.
func (p *Plugin) Start(env *plugins.Env) error {
	return p.callHook(env, globalInit)
}

// Stop calls the script's close function if present.
func (p *Plugin) Stop(env *plugins.Env) error {
	return p.callHook(env, globalClose)
}

// Close releases the interpreter.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = nil
	p.env = nil
	return nil
}

func (p *Plugin) callHook(env *plugins.Env, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return ErrClosed
	}
	if !p.hasFunction(name) {
		return nil
	}
	p.env = env
	l := p.state
	top := l.Top()
	defer l.SetTop(top)

	l.Global(name)
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScript, name, err)
	}
	switch l.TypeOf(-1) {
	case lua.TypeBoolean:
		if !l.ToBoolean(-1) {
			return fmt.Errorf("%w: %s returned false", ErrScript, name)
		}
	case lua.TypeString:
		s, _ := l.ToString(-1)
		return fmt.Errorf("%w: %s: %s", ErrScript, name, s)
	}
	return nil
}

func (p *Plugin) hasFunction(name string) bool {
	l := p.state
	l.Global(name)
	ok := l.IsFunction(-1)
	l.Pop(1)
	return ok
}

// installBot exposes the handler environment as the global `bot` table.
func (p *Plugin) installBot() {
	l := p.state
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "nick", Function: func(l *lua.State) int {
			l.PushString(p.identity().Nick)
			return 1
		}},
		{Name: "channel", Function: func(l *lua.State) int {
			l.PushString(p.identity().Channel)
			return 1
		}},
		{Name: "owner", Function: func(l *lua.State) int {
			l.PushString(p.identity().Owner)
			return 1
		}},
		{Name: "counter", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			v := 0
			if p.env != nil && p.env.Counters != nil {
				v = p.env.Counters.Get(name)
			}
			l.PushInteger(v)
			return 1
		}},
		{Name: "add", Function: func(l *lua.State) int {
			name := lua.CheckString(l, 1)
			delta := lua.OptInteger(l, 2, 1)
			v := 0
			if p.env != nil && p.env.Counters != nil {
				v = p.env.Counters.Add(name, delta)
			}
			l.PushInteger(v)
			return 1
		}},
		{Name: "log", Function: func(l *lua.State) int {
			text := lua.CheckString(l, 1)
			if p.env != nil {
				p.env.Log.Info().Str("script", p.path).Msg(text)
			}
			return 0
		}},
	}, 0)
	l.SetGlobal(globalBotTable)
}

func (p *Plugin) identity() plugins.Identity {
	if p.env == nil {
		return plugins.Identity{}
	}
	return p.env.Identity
}

func pushMessage(l *lua.State, msg protocol.Message) {
	l.NewTable()
	fields := []struct{ key, value string }{
		{"prefix", msg.Prefix},
		{"command", msg.Command},
		{"params", msg.Params},
		{"nick", msg.Nick()},
		{"target", msg.Target()},
		{"text", msg.Text()},
	}
	for _, f := range fields {
		l.PushString(f.value)
		l.SetField(-2, f.key)
	}
}

func readReplies(l *lua.State, idx int) ([]protocol.Message, error) {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil, nil
	case lua.TypeTable:
	default:
		return nil, fmt.Errorf("%w: expected a list of replies, got %s", ErrReply, lua.TypeNameOf(l, idx))
	}

	n := l.RawLength(idx)
	out := make([]protocol.Message, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(idx, i)
		msg, err := readReply(l, l.AbsIndex(-1))
		l.Pop(1)
		if err != nil {
			return nil, fmt.Errorf("reply %d: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func readReply(l *lua.State, idx int) (protocol.Message, error) {
	switch l.TypeOf(idx) {
	case lua.TypeString:
		s, _ := l.ToString(idx)
		msg, err := protocol.ParseString(s)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("%w: %v", ErrReply, err)
		}
		return msg, nil
	case lua.TypeTable:
		msg := protocol.Message{
			Prefix:  stringField(l, idx, "prefix"),
			Command: stringField(l, idx, "command"),
			Params:  stringField(l, idx, "params"),
		}
		if msg.Command == "" {
			return protocol.Message{}, fmt.Errorf("%w: missing command", ErrReply)
		}
		return msg, nil
	default:
		return protocol.Message{}, fmt.Errorf("%w: unexpected %s", ErrReply, lua.TypeNameOf(l, idx))
	}
}

func stringField(l *lua.State, idx int, key string) string {
	l.Field(idx, key)
	defer l.Pop(1)
	if l.TypeOf(-1) != lua.TypeString && l.TypeOf(-1) != lua.TypeNumber {
		return ""
	}
	s, _ := l.ToString(-1)
	return s
}
