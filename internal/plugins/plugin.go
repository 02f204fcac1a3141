package plugins

import (
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/rs/zerolog"
)

// Handler receives every message whose command equals Command().
// Errors are absorbed by the dispatcher and count as zero responses.
type Handler interface {
	Command() string
	HandleMessage(env *Env, msg protocol.Message) (Reply, error)
}

// Starter is the optional initialize capability.
type Starter interface {
	Start(env *Env) error
}

// Stopper is the optional shutdown capability.
type Stopper interface {
	Stop(env *Env) error
}

// Reply is a handler's response set. Stop asks the dispatcher to finish
// the current message and read no further input.
type Reply struct {
	Messages []protocol.Message
	Stop     bool
}

// Counters is the shared name to integer table handlers may read and bump.
type Counters interface {
	Get(name string) int
	Add(name string, delta int) int
}

// Identity carries handler-level startup settings.
type Identity struct {
	Nick    string
	Channel string
	Owner   string
}

// Env is the scoped state handed to every handler call.
type Env struct {
	Identity Identity
	Counters Counters
	Log      zerolog.Logger
}

// HandlerFunc adapts a function to the message handling capability.
type HandlerFunc func(env *Env, msg protocol.Message) (Reply, error)

type funcHandler struct {
	command string
	fn      HandlerFunc
}

// Func builds a Handler for command backed by fn.
func Func(command string, fn HandlerFunc) Handler {
	return funcHandler{command: command, fn: fn}
}

func (f funcHandler) Command() string { return f.command }

func (f funcHandler) HandleMessage(env *Env, msg protocol.Message) (Reply, error) {
	return f.fn(env, msg)
}

// Respond is shorthand for a Reply carrying msgs.
func Respond(msgs ...protocol.Message) Reply {
	return Reply{Messages: msgs}
}
