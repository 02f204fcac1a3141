package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/danmuck/ircctl/internal/logging"
)

// FileBackend keeps counters as "name<TAB>value" lines.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string { return b.path }

// Load reads the whole file. A missing file is an empty table.
func (b *FileBackend) Load(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", b.path, err)
	}
	return parseRecords(data)
}

func parseRecords(data []byte) (map[string]int, error) {
	values := make(map[string]int)
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, raw, ok := strings.Cut(line, "\t")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: line %d: %q", ErrCorruptRecord, lineNo, line)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptRecord, lineNo, err)
		}
		values[name] = n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	return values, nil
}

// Save rewrites the whole file sorted by name. Names that the line format
// cannot hold are skipped.
func (b *FileBackend) Save(ctx context.Context, values map[string]int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.Component("store")
	names := make([]string, 0, len(values))
	for name := range values {
		if !ValidName(name) {
			logger.Warn().Str("name", name).Msg("skipping counter with unstorable name")
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte('\t')
		buf.WriteString(strconv.Itoa(values[name]))
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(b.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
