package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentperch/perchgate/internal/domain/ratelimit"
)

// CounterStore implements ratelimit.CounterStore over the shared SQLite
// store. Periods are fixed windows anchored at the first increment.
type CounterStore struct {
	store *Store
}

// NewCounterStore creates the rate counter adapter.
func NewCounterStore(store *Store) *CounterStore {
	return &CounterStore{store: store}
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)

// Peek returns the counter for key in its current period without touching
// it. A missing row, or a row whose period has elapsed, reads as zero.
func (c *CounterStore) Peek(ctx context.Context, key string, period time.Duration) (ratelimit.Counter, error) {
	now := c.store.now()

	var count int
	var startNs int64
	err := c.store.db.QueryRowContext(ctx,
		`SELECT count, period_start FROM rate_counters WHERE key = ?`, key).
		Scan(&count, &startNs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ratelimit.Counter{Count: 0, PeriodStart: now}, nil
	case err != nil:
		return ratelimit.Counter{}, fmt.Errorf("peek counter %s: %w", key, err)
	}

	start := time.Unix(0, startNs).UTC()
	if now.Sub(start) >= period {
		// Rolled over; the stored row resets on the next increment.
		return ratelimit.Counter{Count: 0, PeriodStart: now}, nil
	}
	return ratelimit.Counter{Count: count, PeriodStart: start}, nil
}

// Increment adds one to the counter for key, atomically rolling the period
// over when the previous one elapsed. One upsert statement, so concurrent
// increments never lose counts.
func (c *CounterStore) Increment(ctx context.Context, key string, period time.Duration) error {
	nowNs := c.store.now().UnixNano()
	periodNs := period.Nanoseconds()

	_, err := c.store.db.ExecContext(ctx, `INSERT INTO rate_counters (key, count, period_start)
		VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			count = CASE WHEN ? - rate_counters.period_start >= ? THEN 1 ELSE rate_counters.count + 1 END,
			period_start = CASE WHEN ? - rate_counters.period_start >= ? THEN ? ELSE rate_counters.period_start END`,
		key, nowNs,
		nowNs, periodNs,
		nowNs, periodNs, nowNs)
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", key, err)
	}
	return nil
}
