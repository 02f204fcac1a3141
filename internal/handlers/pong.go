package handlers

import (
	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
)

// Pong answers server keep-alives with the same params.
func Pong() plugins.Handler {
	return plugins.Func("PING", func(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
		return plugins.Respond(protocol.Message{Command: "PONG", Params: msg.Params}), nil
	})
}

// AutoJoin joins the configured channel once per connection, on the 001
// welcome or the first PING, whichever arrives first.
type AutoJoin struct {
	command string
	joined  *bool
}

// NewAutoJoin returns the 001 and PING handlers sharing one join latch.
func NewAutoJoin() []*AutoJoin {
	joined := new(bool)
	return []*AutoJoin{
		{command: "001", joined: joined},
		{command: "PING", joined: joined},
	}
}

func (a *AutoJoin) Command() string { return a.command }

func (a *AutoJoin) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	if *a.joined || env.Identity.Channel == "" {
		return plugins.Reply{}, nil
	}
	*a.joined = true
	env.Log.Info().Str("channel", env.Identity.Channel).Str("trigger", msg.Command).Msg("joining channel")
	return plugins.Respond(protocol.NewMessage("", "JOIN", env.Identity.Channel)), nil
}

// Start resets the join latch for a new connection.
func (a *AutoJoin) Start(*plugins.Env) error {
	*a.joined = false
	return nil
}
