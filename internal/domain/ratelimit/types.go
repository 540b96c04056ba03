// Package ratelimit provides rate limiting domain types for mutation governance.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Dimension is the axis a rate limit is keyed on.
type Dimension string

const (
	// DimensionTool limits a single tool name.
	DimensionTool Dimension = "tool"
	// DimensionCategory limits a whole tool category.
	DimensionCategory Dimension = "category"
	// DimensionEngagementType limits one engagement type (like, retweet, follow).
	DimensionEngagementType Dimension = "engagement_type"
	// DimensionGlobal limits all mutations together; MatchValue is ignored.
	DimensionGlobal Dimension = "global"
)

// IsValid returns true if the dimension is known.
func (d Dimension) IsValid() bool {
	switch d {
	case DimensionTool, DimensionCategory, DimensionEngagementType, DimensionGlobal:
		return true
	default:
		return false
	}
}

// Limit is one configured counter: at most MaxCount successful mutations
// matching (Dimension, MatchValue) per Period. Many limits may apply to one
// mutation simultaneously; all must pass.
type Limit struct {
	// Key is the composite human-readable identifier, e.g.
	// "ratelimit:category:engage:86400". Computed by FormatKey when empty.
	Key        string
	Dimension  Dimension
	MatchValue string
	MaxCount   int
	Period     time.Duration
}

// FormatKey returns the structured counter key for a limit.
// Format: "ratelimit:{dimension}:{match}:{period-seconds}".
func FormatKey(dim Dimension, match string, period time.Duration) string {
	if dim == DimensionGlobal {
		match = "all"
	}
	return fmt.Sprintf("ratelimit:%s:%s:%d", dim, match, int64(period.Seconds()))
}

// CounterKey returns the limit's counter key, deriving it when unset.
func (l Limit) CounterKey() string {
	if l.Key != "" {
		return l.Key
	}
	return FormatKey(l.Dimension, l.MatchValue, l.Period)
}

// LegacyCounterKey is the single global counter kept for backward
// compatibility with the pre-dimension accounting scheme.
const LegacyCounterKey = "mcp_mutation"

// Counter is the durable state of one counter within its current period.
type Counter struct {
	Count       int
	PeriodStart time.Time
}

// ResetAt returns when the counter's current period ends.
func (c Counter) ResetAt(period time.Duration) time.Time {
	return c.PeriodStart.Add(period)
}

// CounterStore persists per-key counters. Peek never increments: checking
// and incrementing are separate pipeline stages (evaluate reads, completion
// writes), which keeps concurrent evaluations contention-free at the cost of
// a soft limit under races.
type CounterStore interface {
	// Peek returns the counter for key in the current period. A counter
	// whose period has elapsed reads as zero with a fresh period start.
	Peek(ctx context.Context, key string, period time.Duration) (Counter, error)

	// Increment adds one to the counter for key, rolling the period over
	// when the previous one has elapsed.
	Increment(ctx context.Context, key string, period time.Duration) error
}
