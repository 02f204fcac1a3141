package script

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/danmuck/ircctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type mapCounters map[string]int

func (m mapCounters) Get(name string) int { return m[name] }

func (m mapCounters) Add(name string, delta int) int {
	m[name] += delta
	return m[name]
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

const greeter = `
command = "PRIVMSG"
started = false

function initialize()
  started = true
  return true
end

function create_response(msg)
  if msg.text == "!hello" then
    bot.add("greetings", 1)
    return { { command = "PRIVMSG", params = msg.target .. " :hello " .. msg.nick .. " from " .. bot.nick() } }
  end
  if msg.text == "!bye" then
    return { "QUIT :bye" }, true
  end
  return {}
end

function close()
  return true
end
`

func testEnv() (*plugins.Env, mapCounters) {
	counters := mapCounters{}
	return &plugins.Env{
		Identity: plugins.Identity{Nick: "ircctl", Channel: "#test"},
		Counters: counters,
		Log:      zerolog.Nop(),
	}, counters
}

func TestScriptPluginResponds(t *testing.T) {
	testlog.Start(t)
	rec, err := Loader{}.Load(writeScript(t, "greeter.lua", greeter))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Command() != "PRIVMSG" {
		t.Fatalf("unexpected command: %q", rec.Command())
	}
	env, counters := testEnv()
	if err := rec.Handler.(plugins.Starter).Start(env); err != nil {
		t.Fatalf("start: %v", err)
	}

	in := protocol.Message{Prefix: ":alice!a@host", Command: "PRIVMSG", Params: "#test :!hello"}
	reply, err := rec.Handler.HandleMessage(env, in)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := []protocol.Message{{Command: "PRIVMSG", Params: "#test :hello alice from ircctl"}}
	if diff := cmp.Diff(want, reply.Messages); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}
	if reply.Stop {
		t.Fatalf("unexpected stop")
	}
	if counters["greetings"] != 1 {
		t.Fatalf("counter not bumped: %v", counters)
	}

	quiet, err := rec.Handler.HandleMessage(env, protocol.Message{Prefix: ":bob!b@h", Command: "PRIVMSG", Params: "#test :nothing"})
	if err != nil || len(quiet.Messages) != 0 {
		t.Fatalf("expected zero responses, got %+v err=%v", quiet, err)
	}

	bye, err := rec.Handler.HandleMessage(env, protocol.Message{Command: "PRIVMSG", Params: "#test :!bye"})
	if err != nil {
		t.Fatalf("handle bye: %v", err)
	}
	if !bye.Stop || len(bye.Messages) != 1 || bye.Messages[0].Command != "QUIT" || bye.Messages[0].Params != ":bye" {
		t.Fatalf("unexpected bye reply: %+v", bye)
	}

	if err := rec.Handler.(plugins.Stopper).Stop(env); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rec.Unit.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := rec.Handler.HandleMessage(env, in); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after unload, got %v", err)
	}
}

func TestScriptMissingExportsIsNotPlugin(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"nocommand.lua": `function create_response(msg) return {} end`,
		"nohandler.lua": `command = "PING"`,
		"numeric.lua":   `command = 42 function create_response(msg) return {} end`,
		"helpers.lua":   `local M = {} function M.trim(s) return s end`,
	}
	for name, body := range cases {
		_, err := Loader{}.Load(writeScript(t, name, body))
		if !errors.Is(err, plugins.ErrNotPlugin) {
			t.Fatalf("%s: expected ErrNotPlugin, got %v", name, err)
		}
	}
}

func TestScriptLoadFailures(t *testing.T) {
	testlog.Start(t)
	syntax := writeScript(t, "broken.lua", `command = "PING" function create_response(`)
	if _, err := Open(syntax); !errors.Is(err, plugins.ErrLoad) {
		t.Fatalf("expected ErrLoad for syntax error, got %v", err)
	}
	runtime := writeScript(t, "boom.lua", `error("refusing to load")`)
	if _, err := Open(runtime); !errors.Is(err, plugins.ErrLoad) {
		t.Fatalf("expected ErrLoad for top-level error, got %v", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.lua")); !errors.Is(err, plugins.ErrLoad) {
		t.Fatalf("expected ErrLoad for missing file, got %v", err)
	}
}

func TestScriptHandlerErrors(t *testing.T) {
	testlog.Start(t)
	path := writeScript(t, "bad.lua", `
command = "PRIVMSG"
function create_response(msg)
  if msg.text == "crash" then error("kaboom") end
  if msg.text == "shape" then return "not a list" end
  return { { params = "no command" } }
end
function initialize() return false end
`)
	p, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	env, _ := testEnv()
	if _, err := p.HandleMessage(env, protocol.Message{Command: "PRIVMSG", Params: "#c :crash"}); !errors.Is(err, ErrScript) {
		t.Fatalf("expected ErrScript, got %v", err)
	}
	if _, err := p.HandleMessage(env, protocol.Message{Command: "PRIVMSG", Params: "#c :shape"}); !errors.Is(err, ErrReply) {
		t.Fatalf("expected ErrReply for non-list, got %v", err)
	}
	if _, err := p.HandleMessage(env, protocol.Message{Command: "PRIVMSG", Params: "#c :other"}); !errors.Is(err, ErrReply) {
		t.Fatalf("expected ErrReply for missing command, got %v", err)
	}
	if err := p.Start(env); !errors.Is(err, ErrScript) {
		t.Fatalf("expected initialize=false to fail, got %v", err)
	}
	// no close() defined
	if err := p.Stop(env); err != nil {
		t.Fatalf("missing close hook should be a no-op: %v", err)
	}

	// the stack is balanced after failures
	reply, err := p.HandleMessage(env, protocol.Message{Command: "PRIVMSG", Params: "#c :other"})
	if !errors.Is(err, ErrReply) || len(reply.Messages) != 0 {
		t.Fatalf("unexpected state after errors: %+v %v", reply, err)
	}
}
