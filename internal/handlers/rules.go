package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var (
	ErrRule     = errors.New("handlers: invalid rule")
	ErrRuleEval = errors.New("handlers: rule evaluation failed")
)

// Rule is a config-defined responder. When is an expr boolean over the
// incoming message; an empty When always matches. Reply is one protocol
// line in which each $[expr] is replaced by its value, for example
// "PRIVMSG $[target] :hi $[nick]".
type Rule struct {
	Command string
	When    string
	Reply   string
}

type segment struct {
	literal string
	program *vm.Program
}

type ruleHandler struct {
	command string
	source  string
	when    *vm.Program
	reply   []segment
}

// CompileRules compiles every rule up front so a bad rule fails at startup.
func CompileRules(rules []Rule) ([]plugins.Handler, error) {
	out := make([]plugins.Handler, 0, len(rules))
	for i, r := range rules {
		h, err := CompileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func CompileRule(r Rule) (plugins.Handler, error) {
	command := strings.TrimSpace(r.Command)
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrRule)
	}
	if strings.TrimSpace(r.Reply) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrRule)
	}
	sample := ruleEnv(nil, protocol.Message{})

	h := &ruleHandler{command: command, source: r.When}
	if when := strings.TrimSpace(r.When); when != "" {
		program, err := expr.Compile(when, expr.Env(sample), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: when %q: %v", ErrRule, when, err)
		}
		h.when = program
	}
	reply, err := compileTemplate(r.Reply, sample)
	if err != nil {
		return nil, err
	}
	h.reply = reply
	return h, nil
}

// compileTemplate splits s into literal text and $[expr] programs. Brackets
// inside an expression must balance.
func compileTemplate(s string, sample map[string]any) ([]segment, error) {
	var out []segment
	for {
		start := strings.Index(s, "$[")
		if start < 0 {
			if s != "" {
				out = append(out, segment{literal: s})
			}
			return out, nil
		}
		if start > 0 {
			out = append(out, segment{literal: s[:start]})
		}
		body := s[start+2:]
		end, depth := -1, 1
		for i := 0; i < len(body) && end < 0; i++ {
			switch body[i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					end = i
				}
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated $[ in reply", ErrRule)
		}
		src := strings.TrimSpace(body[:end])
		program, err := expr.Compile(src, expr.Env(sample))
		if err != nil {
			return nil, fmt.Errorf("%w: reply $[%s]: %v", ErrRule, src, err)
		}
		out = append(out, segment{program: program})
		s = body[end+1:]
	}
}

func ruleEnv(env *plugins.Env, msg protocol.Message) map[string]any {
	var id plugins.Identity
	var counters plugins.Counters
	if env != nil {
		id = env.Identity
		counters = env.Counters
	}
	return map[string]any{
		"prefix":  msg.Prefix,
		"nick":    msg.Nick(),
		"command": msg.Command,
		"params":  msg.Params,
		"target":  msg.Target(),
		"text":    msg.Text(),
		"me":      id.Nick,
		"channel": id.Channel,
		"owner":   id.Owner,
		"counter": func(name string) int {
			if counters == nil {
				return 0
			}
			return counters.Get(name)
		},
	}
}

func (h *ruleHandler) Command() string { return h.command }

func (h *ruleHandler) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	vars := ruleEnv(env, msg)
	if h.when != nil {
		ok, err := expr.Run(h.when, vars)
		if err != nil {
			return plugins.Reply{}, fmt.Errorf("%w: when %q: %v", ErrRuleEval, h.source, err)
		}
		if matched, _ := ok.(bool); !matched {
			return plugins.Reply{}, nil
		}
	}

	var b strings.Builder
	for _, seg := range h.reply {
		if seg.program == nil {
			b.WriteString(seg.literal)
			continue
		}
		v, err := expr.Run(seg.program, vars)
		if err != nil {
			return plugins.Reply{}, fmt.Errorf("%w: reply: %v", ErrRuleEval, err)
		}
		fmt.Fprint(&b, v)
	}
	out, err := protocol.ParseString(b.String())
	if err != nil {
		return plugins.Reply{}, fmt.Errorf("%w: reply %q: %w", ErrRuleEval, b.String(), err)
	}
	return plugins.Respond(out), nil
}
