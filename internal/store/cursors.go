package store

import (
	"context"
	"fmt"
	"sync"
)

// CursorStore keeps, per wallet, the marker of the most recently processed
// trade. Set only updates memory; Flush makes the current state durable and
// may be called any number of times.
type CursorStore interface {
	Get(key string) (Marker, bool)
	Set(key string, m Marker)
	Flush(ctx context.Context) error
	All() map[string]Marker
	Close() error
}

// Backend names accepted by OpenCursors.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// OpenCursors opens the cursor store for the given backend.
func OpenCursors(backend, path string) (CursorStore, error) {
	switch backend {
	case BackendJSON, "":
		return OpenJSONCursors(path)
	case BackendSQLite:
		return OpenSQLiteCursors(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// cursorMap is the in-memory part shared by every backend.
type cursorMap struct {
	mu    sync.Mutex
	last  map[string]Marker
	dirty map[string]struct{}
}

func newCursorMap(initial map[string]Marker) *cursorMap {
	c := &cursorMap{
		last:  make(map[string]Marker, len(initial)),
		dirty: make(map[string]struct{}),
	}
	for k, v := range initial {
		c.last[k] = v
	}
	return c
}

func (c *cursorMap) Get(key string) (Marker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.last[key]
	return m, ok
}

func (c *cursorMap) Set(key string, m Marker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.last[key]; ok && cur == m {
		return
	}
	c.last[key] = m
	c.dirty[key] = struct{}{}
}

func (c *cursorMap) All() map[string]Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Marker, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}

// takeDirty returns the changed entries and clears the dirty set.
// Must be called with mu held.
func (c *cursorMap) takeDirty() map[string]Marker {
	out := make(map[string]Marker, len(c.dirty))
	for k := range c.dirty {
		out[k] = c.last[k]
	}
	c.dirty = make(map[string]struct{})
	return out
}

// restoreDirty marks keys dirty again after a failed flush.
// Must be called with mu held.
func (c *cursorMap) restoreDirty(keys map[string]Marker) {
	for k := range keys {
		c.dirty[k] = struct{}{}
	}
}

// MemoryCursors is a non-durable CursorStore used by tests and dry runs.
type MemoryCursors struct {
	*cursorMap
	flushes int
}

// NewMemoryCursors creates a MemoryCursors seeded with initial.
func NewMemoryCursors(initial map[string]Marker) *MemoryCursors {
	return &MemoryCursors{cursorMap: newCursorMap(initial)}
}

// Flush records the call and clears the dirty set.
func (m *MemoryCursors) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.takeDirty()
	m.flushes++
	return nil
}

// Flushes returns how many times Flush was called.
func (m *MemoryCursors) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

func (m *MemoryCursors) Close() error { return nil }
