// Package hitcount provides the shared path access counter. Entries are
// created on first miss and live for the process lifetime; there is no
// eviction. All operations hold the lock only for the map touch itself,
// never across I/O or the simulated work delay.
package hitcount

import (
	"sync"

	"github.com/haukened/wp-echo/internal/echo/domain"
)

// Counter is a mutex-guarded map from request path to access count.
type Counter struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// New creates an empty Counter.
func New() *Counter {
	return &Counter{
		counts: make(map[string]uint64),
	}
}

// Hit increments the count for path if an entry already exists and reports
// whether it did. A miss leaves the map untouched; the caller is expected
// to do the expensive work unlocked and then call Insert.
func (c *Counter) Hit(path string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, ok := c.counts[path]
	if !ok {
		return 0, false
	}
	count++
	c.counts[path] = count
	return count, true
}

// Insert records a completed first-time request for path. If a racing miss
// already inserted the entry, the count is incremented instead; concurrent
// first-time requests reconcile last-writer-wins, both having paid the
// full delay.
func (c *Counter) Insert(path string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.counts[path] + 1
	c.counts[path] = count
	return count
}

// Len returns the number of distinct paths recorded.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

// Snapshot clones all entries while holding the lock only for the copy,
// then sorts by descending count after release. The relative order of
// equal counts is unspecified.
func (c *Counter) Snapshot() []domain.PathCount {
	c.mu.Lock()
	entries := make([]domain.PathCount, 0, len(c.counts))
	for path, count := range c.counts {
		entries = append(entries, domain.PathCount{Path: path, Count: count})
	}
	c.mu.Unlock()

	domain.SortByCountDesc(entries)
	return entries
}
