// Package cache holds rendered breadcrumbs so read-heavy screens (item
// tables, cascading selects) skip the ancestry walk. Entries are display
// data only; every tree mutation invalidates the whole cache.
package cache

import (
	"context"
	"sync"
)

// Generation identifies a cache state between two invalidations. Get
// returns the generation it read so a breadcrumb computed after a miss is
// stored under that generation; if a mutation invalidated the cache in the
// meantime, the entry lands in a generation nobody reads anymore.
type Generation int64

// NoGeneration makes Set a no-op. Returned when the generation is unknown.
const NoGeneration Generation = -1

// BreadcrumbCache stores root-first breadcrumb names by category id.
// Implementations never return errors: a failing cache behaves as a miss.
type BreadcrumbCache interface {
	Get(ctx context.Context, categoryID string) ([]string, Generation, bool)
	Set(ctx context.Context, gen Generation, categoryID string, names []string)
	InvalidateAll(ctx context.Context)
}

// Nop is used when no cache backend is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]string, Generation, bool) { return nil, NoGeneration, false }
func (Nop) Set(context.Context, Generation, string, []string)        {}
func (Nop) InvalidateAll(context.Context)                            {}

// Memory is a process-local cache for single-instance deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	gen     Generation
	entries map[string][]string
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]string)}
}

func (m *Memory) Get(_ context.Context, categoryID string) ([]string, Generation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names, ok := m.entries[categoryID]
	if !ok {
		return nil, m.gen, false
	}
	return append([]string(nil), names...), m.gen, true
}

// Set drops entries computed under an earlier generation.
func (m *Memory) Set(_ context.Context, gen Generation, categoryID string, names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.entries[categoryID] = append([]string(nil), names...)
}

func (m *Memory) InvalidateAll(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.entries = make(map[string][]string)
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
