package handlers

import (
	"fmt"
	"strings"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
)

const karmaQuery = "!karma"

// Karma tracks name++ and name-- in the shared counter table and answers
// "!karma [name]".
type Karma struct{}

func NewKarma() *Karma { return &Karma{} }

func (k *Karma) Command() string { return "PRIVMSG" }

func (k *Karma) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	if env.Counters == nil {
		return plugins.Reply{}, nil
	}
	text := strings.TrimSpace(msg.Text())
	sender := msg.Nick()

	if rest, ok := strings.CutPrefix(text, karmaQuery); ok && (rest == "" || rest[0] == ' ') {
		name := strings.TrimSpace(rest)
		if name == "" {
			name = sender
		}
		if name == "" {
			return plugins.Reply{}, nil
		}
		line := fmt.Sprintf(":%s has %d karma", name, env.Counters.Get(name))
		return plugins.Respond(protocol.NewMessage("", "PRIVMSG", replyTarget(env, msg), line)), nil
	}

	for _, word := range strings.Fields(text) {
		name, delta := parseKarma(word)
		if delta == 0 || name == sender {
			continue
		}
		n := env.Counters.Add(name, delta)
		env.Log.Debug().Str("name", name).Int("karma", n).Msg("karma adjusted")
	}
	return plugins.Reply{}, nil
}

// parseKarma reads "name++" as +1 and "name--" as -1.
func parseKarma(word string) (string, int) {
	var delta int
	switch {
	case strings.HasSuffix(word, "++"):
		delta = 1
	case strings.HasSuffix(word, "--"):
		delta = -1
	default:
		return "", 0
	}
	name := word[:len(word)-2]
	if name == "" || strings.HasSuffix(name, "-") || strings.ContainsAny(name, "+\t\r\n\x00") {
		return "", 0
	}
	return name, delta
}
