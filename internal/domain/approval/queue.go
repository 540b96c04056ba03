// Package approval defines the approval queue port used for
// route-to-approval decisions.
package approval

import (
	"context"
	"encoding/json"
	"time"
)

// Request is one mutation enqueued for human review.
type Request struct {
	ToolName       string
	TargetID       string
	TargetLabel    string
	ParamsJSON     json.RawMessage
	Source         string
	ReasonCategory string
	Score          float64
	Tags           []string
	CreatedAt      time.Time
}

// Queue is the external approval queue collaborator. The gateway only
// enqueues; resolution happens elsewhere and re-enters the gateway as a new
// mutation at execution time.
type Queue interface {
	// Enqueue adds a request and returns its queue id.
	Enqueue(ctx context.Context, req Request) (int64, error)
}
