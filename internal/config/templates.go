package config

import (
	"fmt"
	"os"
)

func Template() string {
	return ircctlTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(ircctlTemplate), 0o600)
}

const ircctlTemplate = `# ircctl configuration. IRCCTL_* environment variables override these keys
# and -a/-c/-n flags override both.
address = "irc.libera.chat:6667"
channel = "#ircctl"
nick = "ircctl"
owner = ""

plugin_dir = "plugins"
builtins = ["pong", "autojoin", "quit", "karma", "rules"]
max_plugins = 32
max_responses = 16
skip_malformed = false

connect_timeout = "10s"
read_timeout = "0s"
write_timeout = "10s"
process_grace = "2s"

quit_trigger = "@QUIT"
metrics_addr = ""

[store]
kind = "file"
path = "karma.txt"

[[rules]]
command = "PRIVMSG"
when = 'text == "!ping"'
reply = "PRIVMSG $[target] :pong, $[nick]"

[[rules]]
command = "JOIN"
when = "nick != me"
reply = 'PRIVMSG $[trimPrefix(params, ":")] :Hi $[nick]'
`
