package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCorruptRecord = errors.New("store: corrupt record")
	ErrUnknownKind   = errors.New("store: unknown backend kind")
	ErrInvalidName   = errors.New("store: invalid counter name")
)

// Kind selects a Backend implementation.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindNone   Kind = "none"
)

// DefaultPath is where the flat file backend keeps counters.
const DefaultPath = "karma.txt"

type Config struct {
	Kind Kind
	Path string
}

func DefaultConfig() Config {
	return Config{Kind: KindFile, Path: DefaultPath}
}

// Backend persists a whole counter table.
type Backend interface {
	Load(ctx context.Context) (map[string]int, error)
	Save(ctx context.Context, values map[string]int) error
	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg Config) (Backend, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(string(cfg.Kind))))
	path := strings.TrimSpace(cfg.Path)
	switch kind {
	case KindFile, "":
		if path == "" {
			path = DefaultPath
		}
		return NewFileBackend(path), nil
	case KindSQLite:
		b, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Discard keeps nothing between runs.
type Discard struct{}

func (Discard) Load(context.Context) (map[string]int, error) { return map[string]int{}, nil }
func (Discard) Save(context.Context, map[string]int) error    { return nil }
func (Discard) Close() error                                  { return nil }

// ValidName reports whether name can be stored by every backend.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "\t\r\n\x00")
}
