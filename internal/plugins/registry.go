package plugins

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const DefaultMaxPlugins = 32

var (
	ErrNotPlugin    = errors.New("plugins: unit does not export command and create_response")
	ErrRegistryFull = errors.New("plugins: registry full")
	ErrLoad         = errors.New("plugins: unit could not be loaded")
	ErrDiscovery    = errors.New("plugins: discovery failed")
)

// Record is one registered handler and the unit it was loaded from.
type Record struct {
	Name    string
	Source  string
	Handler Handler
	// Unit is closed when the record is unloaded; nil for static handlers.
	Unit io.Closer
}

func (r Record) Command() string {
	if r.Handler == nil {
		return ""
	}
	return r.Handler.Command()
}

// Registry holds records in registration order up to a fixed ceiling.
type Registry struct {
	mu       sync.RWMutex
	max      int
	records  []Record
	unloaded bool
	started  map[int]bool
}

// NewRegistry creates an empty registry. max <= 0 uses DefaultMaxPlugins.
func NewRegistry(max int) *Registry {
	if max <= 0 {
		max = DefaultMaxPlugins
	}
	return &Registry{max: max, started: make(map[int]bool)}
}

// Register appends rec. Records without a command or handler are rejected
// with ErrNotPlugin and not counted.
func (r *Registry) Register(rec Record) error {
	if rec.Handler == nil || strings.TrimSpace(rec.Handler.Command()) == "" {
		return fmt.Errorf("%w: %s", ErrNotPlugin, rec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) >= r.max {
		return fmt.Errorf("%w: max %d, dropped %s", ErrRegistryFull, r.max, rec.Name)
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Registry) Max() int {
	return r.max
}

// Full reports whether another Register would fail.
func (r *Registry) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records) >= r.max
}

// Records returns a copy in registration order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Match returns records advertising exactly command, in registration order.
func (r *Registry) Match(command string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Command() == command {
			out = append(out, rec)
		}
	}
	return out
}

// InitializeAll calls Start on every record that has it. Failures are
// collected; the record stays registered.
func (r *Registry) InitializeAll(env *Env) error {
	recs := r.Records()
	var errs []error
	for i, rec := range recs {
		s, ok := rec.Handler.(Starter)
		if !ok {
			continue
		}
		r.mu.Lock()
		if r.unloaded || r.started[i] {
			r.mu.Unlock()
			continue
		}
		r.started[i] = true
		r.mu.Unlock()
		if err := s.Start(env); err != nil {
			errs = append(errs, fmt.Errorf("initialize %s: %w", rec.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ShutdownAll calls Stop on every record that has it, then unloads every
// unit. Only the first call has any effect.
func (r *Registry) ShutdownAll(env *Env) error {
	r.mu.Lock()
	if r.unloaded {
		r.mu.Unlock()
		return nil
	}
	r.unloaded = true
	recs := make([]Record, len(r.records))
	copy(recs, r.records)
	r.mu.Unlock()

	var errs []error
	for _, rec := range recs {
		if s, ok := rec.Handler.(Stopper); ok {
			if err := s.Stop(env); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", rec.Name, err))
			}
		}
		if err := closeUnit(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unload closes every unit without calling Stop. Used when startup aborts
// before initialization.
func (r *Registry) Unload() error {
	r.mu.Lock()
	if r.unloaded {
		r.mu.Unlock()
		return nil
	}
	r.unloaded = true
	recs := make([]Record, len(r.records))
	copy(recs, r.records)
	r.mu.Unlock()

	var errs []error
	for _, rec := range recs {
		if err := closeUnit(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeUnit(rec Record) error {
	if rec.Unit == nil {
		return nil
	}
	if err := rec.Unit.Close(); err != nil {
		return fmt.Errorf("unload %s: %w", rec.Name, err)
	}
	return nil
}
