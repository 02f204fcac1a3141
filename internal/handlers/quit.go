package handlers

import (
	"strings"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
)

const DefaultQuitTrigger = "@QUIT"

// Quit lets the owner stop the bot from the channel.
type Quit struct {
	trigger string
}

func NewQuit(trigger string) *Quit {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		trigger = DefaultQuitTrigger
	}
	return &Quit{trigger: trigger}
}

func (q *Quit) Command() string { return "PRIVMSG" }

func (q *Quit) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	owner := env.Identity.Owner
	if owner == "" || msg.Nick() != owner || strings.TrimSpace(msg.Text()) != q.trigger {
		return plugins.Reply{}, nil
	}
	// the owner earns one karma for every shutdown
	if env.Counters != nil {
		env.Counters.Add(owner, 1)
	}
	env.Log.Info().Str("owner", owner).Msg("quit requested")
	return plugins.Reply{Messages: []protocol.Message{{Command: "QUIT"}}, Stop: true}, nil
}
