package store

import (
	"maps"
	"sync"
)

// Table is the shared counter table. The zero value is not usable; use
// NewTable.
type Table struct {
	mu     sync.RWMutex
	values map[string]int
}

// NewTable copies initial into a fresh table.
func NewTable(initial map[string]int) *Table {
	values := make(map[string]int, len(initial))
	maps.Copy(values, initial)
	return &Table{values: values}
}

// Get returns the counter for name, zero when unset.
func (t *Table) Get(name string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[name]
}

// Add adjusts name by delta and returns the new value.
func (t *Table) Add(name string, delta int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[name] += delta
	return t.values[name]
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Snapshot returns a copy safe to hand to a backend.
func (t *Table) Snapshot() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.values)
}
