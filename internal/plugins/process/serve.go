package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/rs/zerolog"
)

// Serve runs h as a process plugin: it answers frames read from r on w
// until r reaches EOF or ctx is done. Plugin binaries call it with
// os.Stdin and os.Stdout.
func Serve(ctx context.Context, h plugins.Handler, r io.Reader, w io.Writer) error {
	env := &plugins.Env{Log: zerolog.New(os.Stderr).With().Timestamp().Str("plugin", h.Command()).Logger()}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		lookups := &hostCounters{r: r, w: w, id: req.ID, deltas: map[string]int{}}
		resp := answer(h, env, req, lookups)
		if lookups.err != nil {
			return lookups.err
		}
		if err := WriteFrame(w, resp); err != nil {
			return fmt.Errorf("process: write %s: %w", resp.Type, err)
		}
	}
}

func answer(h plugins.Handler, env *plugins.Env, req Frame, counters *hostCounters) Frame {
	switch req.Type {
	case FrameHello:
		env.Identity = plugins.Identity{Nick: req.Nick, Channel: req.Channel, Owner: req.Owner}
		var caps []string
		if _, ok := h.(plugins.Starter); ok {
			caps = append(caps, CapInitialize)
		}
		if _, ok := h.(plugins.Stopper); ok {
			caps = append(caps, CapClose)
		}
		return Frame{Type: FrameManifest, ID: req.ID, Command: h.Command(), Capabilities: caps}

	case FrameMessage:
		resp := Frame{Type: FrameReply, ID: req.ID}
		if req.Message == nil {
			resp.Error = "message frame without message"
			return resp
		}
		env.Counters = counters
		reply, err := h.HandleMessage(env, req.Message.Message())
		env.Counters = nil
		resp.Counters = counters.deltas
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		for _, m := range reply.Messages {
			resp.Replies = append(resp.Replies, toWire(m))
		}
		resp.Stop = reply.Stop
		return resp

	case FrameInitialize:
		resp := Frame{Type: FrameAck, ID: req.ID}
		if s, ok := h.(plugins.Starter); ok {
			if err := s.Start(env); err != nil {
				resp.Error = err.Error()
			}
		}
		return resp

	case FrameClose:
		resp := Frame{Type: FrameAck, ID: req.ID}
		if s, ok := h.(plugins.Stopper); ok {
			if err := s.Stop(env); err != nil {
				resp.Error = err.Error()
			}
		}
		return resp

	default:
		return Frame{Type: FrameAck, ID: req.ID, Error: fmt.Sprintf("unsupported frame %s", req.Type)}
	}
}

// hostCounters reads values from the host's table with lookup frames and
// records adjustments for the host to apply when the reply arrives. Get
// includes adjustments made earlier in the same message.
type hostCounters struct {
	r      io.Reader
	w      io.Writer
	id     string
	deltas map[string]int
	err    error
}

func (c *hostCounters) Get(name string) int {
	return c.lookup(name) + c.deltas[name]
}

func (c *hostCounters) Add(name string, delta int) int {
	c.deltas[name] += delta
	return c.Get(name)
}

func (c *hostCounters) lookup(name string) int {
	if c.err != nil {
		return 0
	}
	if err := WriteFrame(c.w, Frame{Type: FrameLookup, ID: c.id, Name: name}); err != nil {
		c.err = fmt.Errorf("process: write lookup: %w", err)
		return 0
	}
	resp, err := ReadFrame(c.r)
	if err != nil {
		c.err = fmt.Errorf("process: read value: %w", err)
		return 0
	}
	if resp.Type != FrameValue || resp.ID != c.id || resp.Name != name {
		c.err = fmt.Errorf("%w: got %s %q want value %q", ErrUnexpected, resp.Type, resp.Name, name)
		return 0
	}
	return resp.Value
}
