package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ircctl/internal/observability"
	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/danmuck/ircctl/internal/protocol/line"
	"github.com/rs/zerolog"
)

const DefaultMaxResponses = 16

var (
	ErrNotIdle       = errors.New("engine: already started")
	ErrMalformedLine = errors.New("engine: malformed line")
	ErrHandlerPanic  = errors.New("engine: handler panicked")
)

// State is the dispatch loop lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the connection surface the loop needs. *transport.Conn
// satisfies it.
type Conn interface {
	ReadLine() ([]byte, error)
	WriteLine(b []byte) (int, error)
	Close() error
}

type Config struct {
	// MaxResponses bounds responses collected across all handlers for one
	// incoming line.
	MaxResponses int
	// SkipMalformed keeps the loop running past unparsable or over-long lines.
	SkipMalformed bool
	// Greeting is written once before the first read.
	Greeting []protocol.Message
}

func (c Config) WithDefaults() Config {
	if c.MaxResponses <= 0 {
		c.MaxResponses = DefaultMaxResponses
	}
	return c
}

// Greeting is the registration handshake for nick.
func Greeting(nick string) []protocol.Message {
	return []protocol.Message{
		protocol.NewMessage("", "NICK", nick),
		protocol.NewMessage("", "USER", nick, "8", "*", ":"+nick),
	}
}

// Engine runs the dispatch loop over one connection.
type Engine struct {
	cfg      Config
	registry *plugins.Registry
	env      *plugins.Env
	log      zerolog.Logger

	state atomic.Int32

	mu           sync.Mutex
	conn         Conn
	shutdownOnce sync.Once
	shutdownErr  error
}

func New(reg *plugins.Registry, env *plugins.Env, cfg Config) *Engine {
	if env == nil {
		env = &plugins.Env{Log: zerolog.Nop()}
	}
	return &Engine{
		cfg:      cfg.WithDefaults(),
		registry: reg,
		env:      env,
		log:      env.Log.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) State() State { return State(e.state.Load()) }

// Run sends the greeting and dispatches lines until the peer closes, a
// handler requests stop, ctx is done, or a terminal error occurs. A clean
// end returns nil.
func (e *Engine) Run(ctx context.Context, conn Conn) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("%w: state %s", ErrNotIdle, e.State())
	}
	defer e.state.Store(int32(StateStopped))

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	// closing the connection is the only way to unblock a pending read
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, m := range e.cfg.Greeting {
		if err := e.send(conn, m); err != nil {
			return e.endErr(ctx, err)
		}
	}

	for e.State() == StateRunning {
		raw, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.log.Info().Msg("connection closed by peer")
				return nil
			}
			if errors.Is(err, line.ErrLineTooLong) {
				observability.RecordLine(observability.LineTooLong)
				if e.cfg.SkipMalformed {
					e.log.Warn().Err(err).Msg("skipping over-long line")
					continue
				}
				return fmt.Errorf("%w: %w", ErrMalformedLine, err)
			}
			return e.endErr(ctx, err)
		}

		msg, err := protocol.Parse(raw)
		if err != nil {
			observability.RecordLine(observability.LineMalformed)
			if e.cfg.SkipMalformed {
				e.log.Warn().Err(err).Bytes("line", raw).Msg("skipping malformed line")
				continue
			}
			return fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}
		observability.RecordLine(observability.LineParsed)

		start := time.Now()
		responses, matched, stopRequested := e.Dispatch(msg)
		if stopRequested {
			e.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
			e.log.Info().Str("command", msg.Command).Msg("handler requested stop, draining")
		}
		for _, out := range responses {
			if err := e.send(conn, out); err != nil {
				return e.endErr(ctx, err)
			}
		}
		observability.RecordDispatch(msg.Command, matched, time.Since(start))
	}
	return nil
}

// endErr reports a failure caused by ctx cancellation as a clean stop.
func (e *Engine) endErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		e.log.Info().Err(ctx.Err()).Msg("run cancelled")
		return nil
	}
	return err
}

// Dispatch invokes every handler matching msg.Command in registration order
// and collects their responses under the MaxResponses budget. Failed and
// panicking handlers contribute nothing.
func (e *Engine) Dispatch(msg protocol.Message) ([]protocol.Message, int, bool) {
	matches := e.registry.Match(msg.Command)
	var out []protocol.Message
	stop := false
	for _, rec := range matches {
		observability.RecordHandler(rec.Name)
		reply, err := e.invoke(rec, msg)
		if err != nil {
			kind := observability.FailError
			if errors.Is(err, ErrHandlerPanic) {
				kind = observability.FailPanic
			}
			observability.RecordHandlerFailure(rec.Name, kind)
			e.log.Warn().Str("plugin", rec.Name).Str("command", msg.Command).Err(err).Msg("handler failed")
			continue
		}
		if reply.Stop {
			stop = true
		}

		room := e.cfg.MaxResponses - len(out)
		if len(reply.Messages) > room {
			dropped := len(reply.Messages) - room
			for i := 0; i < dropped; i++ {
				observability.RecordResponseDropped(observability.DropBudget)
			}
			e.log.Warn().
				Str("plugin", rec.Name).
				Int("dropped", dropped).
				Int("max_responses", e.cfg.MaxResponses).
				Msg("response budget exhausted")
			reply.Messages = reply.Messages[:room]
		}
		out = append(out, reply.Messages...)
	}
	return out, len(matches), stop
}

func (e *Engine) invoke(rec plugins.Record, msg protocol.Message) (reply plugins.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = plugins.Reply{}, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return rec.Handler.HandleMessage(e.env, msg)
}

// send serializes and writes m. Messages that cannot be serialized are
// dropped and counted; only write failures are returned.
func (e *Engine) send(conn Conn, m protocol.Message) error {
	b, err := protocol.Serialize(m)
	if err != nil {
		reason := observability.DropInvalid
		if errors.Is(err, protocol.ErrLineTooLong) {
			reason = observability.DropTooLong
		}
		observability.RecordResponseDropped(reason)
		e.log.Warn().Str("command", m.Command).Str("reason", reason).Err(err).Msg("response dropped")
		return nil
	}
	if _, err := conn.WriteLine(b); err != nil {
		return err
	}
	observability.RecordResponseSent()
	return nil
}

// Shutdown stops every plugin and closes the connection. Only the first
// call has any effect.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.state.Store(int32(StateStopped))
		errs := []error{e.registry.ShutdownAll(e.env)}
		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()
		if conn != nil {
			errs = append(errs, conn.Close())
		}
		e.shutdownErr = errors.Join(errs...)
	})
	return e.shutdownErr
}
