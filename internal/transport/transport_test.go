package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ircctl/internal/testutil/testlog"
)

type fakeResolver struct {
	addrs map[string][]string
	err   error
}

func (f fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.addrs[host], nil
}

func TestSplitAddress(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		addr, host, port string
	}{
		{"irc.example.net", "irc.example.net", DefaultPort},
		{"irc.example.net:6697", "irc.example.net", "6697"},
		{"irc.example.net:", "irc.example.net", DefaultPort},
		{"[::1]:7000", "::1", "7000"},
		{"[::1]", "::1", DefaultPort},
		{"::1", "::1", DefaultPort},
		{" 127.0.0.1:6668 ", "127.0.0.1", "6668"},
	}
	for _, tc := range cases {
		host, port, err := SplitAddress(tc.addr)
		if err != nil {
			t.Fatalf("split %q: %v", tc.addr, err)
		}
		if host != tc.host || port != tc.port {
			t.Fatalf("split %q = %q,%q want %q,%q", tc.addr, host, port, tc.host, tc.port)
		}
	}
}

func TestSplitAddressFailures(t *testing.T) {
	testlog.Start(t)
	for _, addr := range []string{"", "   ", ":6667", "host:notaport", "host:70000", "[::1"} {
		if _, _, err := SplitAddress(addr); !errors.Is(err, ErrResolve) {
			t.Fatalf("addr %q expected ErrResolve, got %v", addr, err)
		}
	}
}

func TestResolveUsesResolver(t *testing.T) {
	testlog.Start(t)
	r := fakeResolver{addrs: map[string][]string{"irc.example.net": {"10.0.0.1", "10.0.0.2"}}}
	eps, err := Resolve(context.Background(), "irc.example.net", r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(eps) != 2 || eps[0].Addr != "10.0.0.1:6667" || eps[1].Addr != "10.0.0.2:6667" {
		t.Fatalf("unexpected endpoints: %+v", eps)
	}
}

func TestResolveFailures(t *testing.T) {
	testlog.Start(t)
	if _, err := Resolve(context.Background(), "nowhere", fakeResolver{err: errors.New("no such host")}); !errors.Is(err, ErrResolve) {
		t.Fatalf("expected ErrResolve, got %v", err)
	}
	if _, err := Resolve(context.Background(), "empty", fakeResolver{}); !errors.Is(err, ErrResolve) {
		t.Fatalf("expected ErrResolve for empty result, got %v", err)
	}
}

func TestDialReadWrite(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = io.WriteString(c, "PING :srv\r\n")
		l, _ := bufio.NewReader(c).ReadString('\n')
		got <- l
	}()

	eps, err := Resolve(context.Background(), ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := Dial(context.Background(), eps, DefaultConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	b, err := conn.ReadLine()
	if err != nil || string(b) != "PING :srv\r\n" {
		t.Fatalf("read line: %q %v", b, err)
	}
	if _, err := conn.WriteLine([]byte("PONG :srv\r\n")); err != nil {
		t.Fatalf("write line: %v", err)
	}
	select {
	case l := <-got:
		if l != "PONG :srv\r\n" {
			t.Fatalf("server got %q", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not receive line")
	}

	if _, err := conn.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after peer close, got %v", err)
	}
}

func TestDialFallsThroughEndpoints(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			_ = c.Close()
		}
	}()

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := dead.Addr().String()
	_ = dead.Close()

	eps := []Endpoint{{Host: "dead", Addr: deadAddr}, {Host: "live", Addr: ln.Addr().String()}}
	conn, err := Dial(context.Background(), eps, Config{ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()
}

func TestDialAllFail(t *testing.T) {
	testlog.Start(t)
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := dead.Addr().String()
	_ = dead.Close()

	if _, err := Dial(context.Background(), []Endpoint{{Addr: addr}}, DefaultConfig()); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if _, err := Dial(context.Background(), nil, DefaultConfig()); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect for no endpoints, got %v", err)
	}
}

func TestConnCloseIdempotentAndLineTooLong(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	conn := NewConn(client, Config{})
	go func() {
		_, _ = io.WriteString(server, strings.Repeat("z", 600)+"\r\nPING :x\r\n")
	}()

	if _, err := conn.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	b, err := conn.ReadLine()
	if err != nil || string(b) != "PING :x\r\n" {
		t.Fatalf("expected resync, got %q %v", b, err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	_ = server.Close()
}

func TestConnPartialLineAtCloseIsEOF(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	conn := NewConn(client, Config{})
	defer conn.Close()
	go func() {
		_, _ = io.WriteString(server, "PING :x\r\nPRIVMSG #c :cut of")
		_ = server.Close()
	}()

	b, err := conn.ReadLine()
	if err != nil || string(b) != "PING :x\r\n" {
		t.Fatalf("read line: %q %v", b, err)
	}
	if _, err := conn.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF for a partial tail, got %v", err)
	}
}
