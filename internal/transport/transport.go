package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/ircctl/internal/logging"
	"github.com/danmuck/ircctl/internal/protocol/line"
)

var (
	ErrResolve     = errors.New("transport: address resolution failed")
	ErrConnect     = errors.New("transport: connect failed")
	ErrRead        = errors.New("transport: read failed")
	ErrWrite       = errors.New("transport: write failed")
	ErrLineTooLong = line.ErrLineTooLong
)

// Endpoint is one resolved address for the server.
type Endpoint struct {
	Host string
	Addr string
}

// Resolver is the subset of *net.Resolver used for lookups.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SplitAddress splits an address of the form host, host:port or
// [v6]:port, substituting DefaultPort when no port is given.
func SplitAddress(addr string) (string, string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", "", fmt.Errorf("%w: empty address", ErrResolve)
	}

	host, port := addr, DefaultPort
	switch {
	case strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]"):
		host = addr[1 : len(addr)-1]
	case strings.HasPrefix(addr, "["):
		h, p, err := net.SplitHostPort(addr)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrResolve, err)
		}
		host, port = h, p
	case strings.Count(addr, ":") == 1:
		h, p, err := net.SplitHostPort(addr)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrResolve, err)
		}
		host, port = h, p
	}
	// more than one colon without brackets is a bare IPv6 literal

	if host == "" {
		return "", "", fmt.Errorf("%w: missing host in %q", ErrResolve, addr)
	}
	if port == "" {
		port = DefaultPort
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", "", fmt.Errorf("%w: invalid port %q", ErrResolve, port)
	}
	return host, port, nil
}

// Resolve turns an address into candidate endpoints. A nil resolver
// uses net.DefaultResolver.
func Resolve(ctx context.Context, address string, r Resolver) ([]Endpoint, error) {
	host, port, err := SplitAddress(address)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolve, host)
	}
	out := make([]Endpoint, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Endpoint{Host: host, Addr: net.JoinHostPort(a, port)})
	}
	return out, nil
}

// Dial connects to the first reachable endpoint, in order.
func Dial(ctx context.Context, endpoints []Endpoint, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints", ErrConnect)
	}
	logger := logging.Component("transport")
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}

	var lastErr error
	for _, ep := range endpoints {
		raw, err := dialer.DialContext(ctx, "tcp", ep.Addr)
		if err != nil {
			logger.Warn().Str("addr", ep.Addr).Err(err).Msg("dial failed")
			lastErr = err
			continue
		}
		logger.Info().Str("host", ep.Host).Str("addr", ep.Addr).Msg("connected")
		return NewConn(raw, cfg), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrConnect, lastErr)
}

// Conn is one framed stream connection. It is not safe for concurrent
// readers or concurrent writers; Close may be called from any goroutine.
type Conn struct {
	raw       net.Conn
	reader    *line.Reader
	cfg       Config
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established net.Conn.
func NewConn(raw net.Conn, cfg Config) *Conn {
	cfg = cfg.WithDefaults()
	return &Conn{
		raw:    raw,
		reader: line.NewReader(raw, cfg.Limits),
		cfg:    cfg,
	}
}

// ReadLine returns the next line including its terminator.
func (c *Conn) ReadLine() ([]byte, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	b, err := c.reader.ReadLine()
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, io.EOF), errors.Is(err, line.ErrLineTooLong):
		return nil, err
	case errors.Is(err, line.ErrTruncated):
		// peer closed mid-line; the partial tail is dropped
		logger := logging.Component("transport")
		logger.Warn().Err(err).Msg("connection closed with partial line")
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
}

// WriteLine sends b completely or returns an error.
func (c *Conn) WriteLine(b []byte) (int, error) {
	if c.cfg.WriteTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	n, err := line.WriteLine(c.raw, b)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return n, nil
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
