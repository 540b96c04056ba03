// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/agentperch/perchgate/internal/domain/approval"
)

// DefaultMaxPending is the default maximum number of queued approvals.
const DefaultMaxPending = 100

// QueuedApproval is one stored queue entry.
type QueuedApproval struct {
	ID      int64
	Request approval.Request
}

// ApprovalQueue implements approval.Queue in memory with bounded capacity.
// Thread-safe; oldest entries are evicted FIFO at capacity. For
// development and testing; production wires a real review system here.
type ApprovalQueue struct {
	mu      sync.RWMutex
	entries []QueuedApproval
	nextID  int64
	maxSize int
}

// NewApprovalQueue creates an ApprovalQueue with the given capacity.
func NewApprovalQueue(maxSize int) *ApprovalQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxPending
	}
	return &ApprovalQueue{maxSize: maxSize, nextID: 1}
}

var _ approval.Queue = (*ApprovalQueue)(nil)

// Enqueue stores a request and returns its queue id. At capacity the
// oldest entry is evicted.
func (q *ApprovalQueue) Enqueue(_ context.Context, req approval.Request) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	id := q.nextID
	q.nextID++
	q.entries = append(q.entries, QueuedApproval{ID: id, Request: req})
	return id, nil
}

// List returns a copy of all queued entries in enqueue order.
func (q *ApprovalQueue) List() []QueuedApproval {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]QueuedApproval, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries.
func (q *ApprovalQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}
