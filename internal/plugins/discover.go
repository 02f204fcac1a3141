package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/ircctl/internal/logging"
)

// Loader opens one kind of loadable unit, selected by file suffix.
type Loader interface {
	Suffix() string
	// Load returns ErrNotPlugin when the unit opens but lacks the required
	// exports, and any other error when it cannot be opened at all.
	Load(path string) (Record, error)
}

// Discover lists regular files in dir whose names end in one of suffixes,
// sorted lexicographically. Hidden entries are skipped.
func Discover(dir string, suffixes []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDiscovery, dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		if matchSuffix(name, suffixes) == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDiscovery, name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// matchSuffix returns the longest suffix name ends with, or "" if none.
// A bare suffix with no stem does not match.
func matchSuffix(name string, suffixes []string) string {
	best := ""
	for _, s := range suffixes {
		if s == "" || len(name) <= len(s) {
			continue
		}
		if strings.HasSuffix(name, s) && len(s) > len(best) {
			best = s
		}
	}
	return best
}

// LoadDir discovers units in dir and registers every one that loads as a
// plugin. It returns the number registered. Discovery and open failures are
// fatal; non-plugins are skipped; loading stops once the registry is full.
func LoadDir(dir string, reg *Registry, loaders ...Loader) (int, error) {
	logger := logging.Component("plugins")
	bySuffix := make(map[string]Loader, len(loaders))
	suffixes := make([]string, 0, len(loaders))
	for _, l := range loaders {
		bySuffix[l.Suffix()] = l
		suffixes = append(suffixes, l.Suffix())
	}

	paths, err := Discover(dir, suffixes)
	if err != nil {
		return 0, err
	}

	registered := 0
	for i, path := range paths {
		if reg.Full() {
			logger.Warn().
				Int("max_plugins", reg.Max()).
				Int("skipped", len(paths)-i).
				Msg("plugin registry full, not loading remaining units")
			break
		}
		loader := bySuffix[matchSuffix(filepath.Base(path), suffixes)]
		rec, err := loader.Load(path)
		if errors.Is(err, ErrNotPlugin) {
			logger.Debug().Str("path", path).Err(err).Msg("skipping non-plugin unit")
			continue
		}
		if err != nil {
			return registered, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
		}
		if rec.Name == "" {
			rec.Name = filepath.Base(path)
		}
		if rec.Source == "" {
			rec.Source = path
		}
		if err := reg.Register(rec); err != nil {
			_ = closeUnit(rec)
			if errors.Is(err, ErrNotPlugin) {
				logger.Debug().Str("path", path).Msg("skipping unit without command")
				continue
			}
			logger.Warn().Str("path", path).Err(err).Msg("plugin not registered")
			break
		}
		registered++
		logger.Info().Str("plugin", rec.Name).Str("command", rec.Command()).Msg("plugin registered")
	}
	return registered, nil
}
