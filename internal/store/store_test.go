package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/ircctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func TestTableAddGetSnapshot(t *testing.T) {
	testlog.Start(t)
	seed := map[string]int{"alice": 2}
	tbl := NewTable(seed)
	seed["alice"] = 100
	if got := tbl.Get("alice"); got != 2 {
		t.Fatalf("table aliases its seed map: %d", got)
	}
	if got := tbl.Add("alice", 3); got != 5 {
		t.Fatalf("unexpected add result: %d", got)
	}
	if got := tbl.Add("bob", -1); got != -1 {
		t.Fatalf("unexpected add result for new name: %d", got)
	}
	if tbl.Get("carol") != 0 {
		t.Fatalf("unset counter should read zero")
	}
	snap := tbl.Snapshot()
	snap["alice"] = 0
	if tbl.Get("alice") != 5 || tbl.Len() != 2 {
		t.Fatalf("snapshot is not a copy: %v", tbl.Snapshot())
	}
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	testlog.Start(t)
	b := NewFileBackend(filepath.Join(t.TempDir(), "karma.txt"))
	values, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected empty table, got %v", values)
	}
}

func TestFileBackendRoundTripSorted(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "karma.txt")
	b := NewFileBackend(path)
	in := map[string]int{"zed": 1, "alice": -4, "bob": 12, "bad\tname": 9}
	if err := b.Save(context.Background(), in); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := "alice\t-4\nbob\t12\nzed\t1\n"; string(raw) != want {
		t.Fatalf("unexpected file layout:\n%q\nwant\n%q", raw, want)
	}
	out, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]int{"zed": 1, "alice": -4, "bob": 12}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFileBackendCorruptRecord(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"no tab":     "alice 3\n",
		"not int":    "alice\tlots\n",
		"empty name": "\t3\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "karma.txt")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := NewFileBackend(path).Load(context.Background()); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("%s: expected ErrCorruptRecord, got %v", name, err)
		}
	}
}

func TestFileBackendToleratesBlankLinesAndCRLF(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "karma.txt")
	if err := os.WriteFile(path, []byte("alice\t3\r\n\nbob\t-1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	values, err := NewFileBackend(path).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if values["alice"] != 3 || values["bob"] != -1 || len(values) != 2 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "counters.db")
	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := b.Save(ctx, map[string]int{"alice": 1, "bob": 2}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := b.Save(ctx, map[string]int{"alice": 7}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	values, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"alice": 7}, values); diff != "" {
		t.Fatalf("save should replace the table (-want +got):\n%s", diff)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	b, err := Open(Config{Kind: "file", Path: filepath.Join(dir, "k.txt")})
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := b.(*FileBackend); !ok {
		t.Fatalf("expected file backend, got %T", b)
	}

	b, err = Open(Config{Kind: "SQLite", Path: filepath.Join(dir, "k.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, ok := b.(*SQLiteBackend); !ok {
		t.Fatalf("expected sqlite backend, got %T", b)
	}
	_ = b.Close()

	b, err = Open(Config{Kind: "none"})
	if err != nil {
		t.Fatalf("open none: %v", err)
	}
	if err := b.Save(context.Background(), map[string]int{"x": 1}); err != nil {
		t.Fatalf("discard save: %v", err)
	}

	if _, err := Open(Config{Kind: "redis"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := Open(Config{Kind: "sqlite"}); err == nil {
		t.Fatalf("expected sqlite without path to fail")
	}
}
