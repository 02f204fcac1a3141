package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/protocol"
	"github.com/google/uuid"
)

const Suffix = ".plugin"

var (
	ErrPluginFailed = errors.New("process: plugin reported failure")
	ErrIDMismatch   = errors.New("process: response id mismatch")
	ErrClosed       = errors.New("process: plugin closed")
)

// Loader starts .plugin executables.
type Loader struct {
	Identity plugins.Identity
	// Grace is how long Close waits for the process to exit after stdin
	// is closed before killing it.
	Grace time.Duration
}

func (l Loader) Suffix() string { return Suffix }

func (l Loader) Load(path string) (plugins.Record, error) {
	p, err := Start(path, l.Identity, l.Grace)
	if err != nil {
		return plugins.Record{}, err
	}
	return plugins.Record{Source: path, Handler: p, Unit: p}, nil
}

// Manifest is what a plugin declares in reply to hello.
type Manifest struct {
	Command      string
	Capabilities []string
}

func (m Manifest) Has(capability string) bool {
	return slices.Contains(m.Capabilities, capability)
}

// Plugin is a handler served by another process over framed pipes.
type Plugin struct {
	mu       sync.Mutex
	name     string
	r        io.Reader
	w        io.WriteCloser
	manifest Manifest
	closed   bool
	done     func() error
}

// Start runs the executable at path and performs the hello exchange.
func Start(path string, id plugins.Identity, grace time.Duration) (*Plugin, error) {
	if grace <= 0 {
		grace = 2 * time.Second
	}
	cmd := exec.Command(path)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", plugins.ErrLoad, path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", plugins.ErrLoad, path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", plugins.ErrLoad, path, err)
	}

	wait := func() error {
		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()
		select {
		case err := <-exited:
			return err
		case <-time.After(grace):
			_ = cmd.Process.Kill()
			<-exited
			return nil
		}
	}

	p, err := Connect(path, stdout, stdin, id)
	if err != nil {
		_ = stdin.Close()
		_ = wait()
		return nil, err
	}
	p.done = wait
	return p, nil
}

// Connect performs the hello exchange over an existing stream pair.
func Connect(name string, r io.Reader, w io.WriteCloser, id plugins.Identity) (*Plugin, error) {
	p := &Plugin{name: name, r: r, w: w}
	resp, err := p.roundTrip(Frame{
		Type:    FrameHello,
		Nick:    id.Nick,
		Channel: id.Channel,
		Owner:   id.Owner,
	}, FrameManifest, nil)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %s: hello: %w", plugins.ErrLoad, name, err)
	}
	if resp.Command == "" {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %s: manifest has no command", plugins.ErrNotPlugin, name)
	}
	p.manifest = Manifest{Command: resp.Command, Capabilities: resp.Capabilities}
	return p, nil
}

func (p *Plugin) Manifest() Manifest { return p.manifest }

func (p *Plugin) Command() string { return p.manifest.Command }

func (p *Plugin) HandleMessage(env *plugins.Env, msg protocol.Message) (plugins.Reply, error) {
	wire := toWire(msg)
	var counters plugins.Counters
	if env != nil {
		counters = env.Counters
	}
	resp, err := p.call(Frame{Type: FrameMessage, Message: &wire}, FrameReply, counters)
	if err != nil {
		return plugins.Reply{}, err
	}
	if env != nil && env.Counters != nil {
		for name, delta := range resp.Counters {
			env.Counters.Add(name, delta)
		}
	}
	if resp.Error != "" {
		return plugins.Reply{}, fmt.Errorf("%w: %s", ErrPluginFailed, resp.Error)
	}
	out := make([]protocol.Message, 0, len(resp.Replies))
	for _, r := range resp.Replies {
		out = append(out, r.Message())
	}
	return plugins.Reply{Messages: out, Stop: resp.Stop}, nil
}

func (p *Plugin) Start(env *plugins.Env) error {
	if !p.manifest.Has(CapInitialize) {
		return nil
	}
	return p.lifecycle(FrameInitialize)
}

func (p *Plugin) Stop(env *plugins.Env) error {
	if !p.manifest.Has(CapClose) {
		return nil
	}
	return p.lifecycle(FrameClose)
}

func (p *Plugin) lifecycle(t FrameType) error {
	resp, err := p.call(Frame{Type: t}, FrameAck, nil)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s: %s", ErrPluginFailed, t, resp.Error)
	}
	return nil
}

// Close ends the plugin's input stream and waits for it to exit.
func (p *Plugin) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.w.Close()
	if p.done != nil {
		if werr := p.done(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (p *Plugin) call(req Frame, want FrameType, counters plugins.Counters) (Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Frame{}, ErrClosed
	}
	return p.roundTrip(req, want, counters)
}

// roundTrip sends req and waits for want. Counter lookups the plugin makes
// while handling req are answered from counters.
func (p *Plugin) roundTrip(req Frame, want FrameType, counters plugins.Counters) (Frame, error) {
	req.ID = uuid.NewString()
	if err := WriteFrame(p.w, req); err != nil {
		return Frame{}, fmt.Errorf("process: %s: write %s: %w", p.name, req.Type, err)
	}
	resp, err := ReadFrame(p.r)
	for err == nil && resp.Type == FrameLookup && resp.ID == req.ID {
		value := Frame{Type: FrameValue, ID: req.ID, Name: resp.Name}
		if counters != nil {
			value.Value = counters.Get(resp.Name)
		}
		if err := WriteFrame(p.w, value); err != nil {
			return Frame{}, fmt.Errorf("process: %s: write %s: %w", p.name, value.Type, err)
		}
		resp, err = ReadFrame(p.r)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("process: %s: read %s: %w", p.name, want, err)
	}
	if resp.Type != want {
		return Frame{}, fmt.Errorf("%w: %s: got %s want %s", ErrUnexpected, p.name, resp.Type, want)
	}
	if resp.ID != req.ID {
		return Frame{}, fmt.Errorf("%w: %s: got %q want %q", ErrIDMismatch, p.name, resp.ID, req.ID)
	}
	return resp, nil
}
