// Command ircctl-echo is a minimal process plugin. Install it into the
// plugin directory as echo.plugin and the bot answers "!echo <text>".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/plugins/process"
	"github.com/danmuck/ircctl/internal/protocol"
)

const trigger = "!echo "

type echo struct{}

func (echo) Command() string { return "PRIVMSG" }

func (echo) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	text, ok := strings.CutPrefix(msg.Text(), trigger)
	if !ok || strings.TrimSpace(text) == "" {
		return plugins.Reply{}, nil
	}
	target := msg.Target()
	if !strings.HasPrefix(target, "#") {
		target = msg.Nick()
	}
	env.Counters.Add("echo", 1)
	return plugins.Respond(protocol.NewMessage("", "PRIVMSG", target, ":"+text)), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := process.Serve(ctx, echo{}, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ircctl-echo: %v\n", err)
		os.Exit(1)
	}
}
