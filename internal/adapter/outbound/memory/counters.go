package memory

import (
	"context"
	"sync"
	"time"

	"github.com/agentperch/perchgate/internal/domain/ratelimit"
)

// CounterStore implements ratelimit.CounterStore in memory. Thread-safe.
// For development and testing; the SQLite adapter is the durable one.
type CounterStore struct {
	mu    sync.Mutex
	cells map[string]ratelimit.Counter

	// Now is a test seam; defaults to time.Now.
	Now func() time.Time
}

// NewCounterStore creates an empty in-memory counter store.
func NewCounterStore() *CounterStore {
	return &CounterStore{
		cells: make(map[string]ratelimit.Counter),
		Now:   time.Now,
	}
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)

// Peek returns the counter for key, reading elapsed periods as zero.
func (c *CounterStore) Peek(_ context.Context, key string, period time.Duration) (ratelimit.Counter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	cell, ok := c.cells[key]
	if !ok || now.Sub(cell.PeriodStart) >= period {
		return ratelimit.Counter{Count: 0, PeriodStart: now}, nil
	}
	return cell, nil
}

// Increment adds one to the counter for key, rolling the period when the
// previous one elapsed.
func (c *CounterStore) Increment(_ context.Context, key string, period time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	cell, ok := c.cells[key]
	if !ok || now.Sub(cell.PeriodStart) >= period {
		c.cells[key] = ratelimit.Counter{Count: 1, PeriodStart: now}
		return nil
	}
	cell.Count++
	c.cells[key] = cell
	return nil
}
