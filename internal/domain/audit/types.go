// Package audit contains domain types for the mutation audit trail.
package audit

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a mutation audit record.
//
// State machine: Pending -> Success | Failed (exactly one transition), or a
// record is created directly as Duplicate. All three non-Pending states are
// final.
type Status string

const (
	// StatusPending means the side effect has not run yet.
	StatusPending Status = "pending"
	// StatusSuccess means the side effect completed.
	StatusSuccess Status = "success"
	// StatusFailed means the side effect was attempted and failed.
	StatusFailed Status = "failed"
	// StatusDuplicate means the request repeated a recent success and was
	// never executed. References the original via OriginalCorrelationID.
	StatusDuplicate Status = "duplicate"
)

// IsTerminal returns true for the final states.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusDuplicate
}

// MutationRecord is one row of the mutation audit trail.
type MutationRecord struct {
	// ID is assigned by the store on insert.
	ID int64
	// CorrelationID is unique per attempt.
	CorrelationID string
	// OriginalCorrelationID is set only on Duplicate records and names the
	// attempt whose result was reused.
	OriginalCorrelationID string
	ToolName              string
	// ParamsHash is the stable hash of (tool name, canonical params).
	ParamsHash string
	// ParamsSummary is a truncated, redacted rendering of the params.
	ParamsSummary string
	Status        Status
	ResultSummary string
	// RollbackHint tells an operator how to undo the effect, when known.
	RollbackHint string
	ErrorMessage string
	ElapsedMS    int64
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// MaxParamsSummaryLen bounds the stored params summary.
const MaxParamsSummaryLen = 256

// sensitiveKeywords lists substrings that mark a parameter key as sensitive.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

// SummarizeParams renders params as compact JSON with sensitive values
// masked, truncated to MaxParamsSummaryLen. Non-object payloads are
// truncated as-is.
func SummarizeParams(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(params, &m); err == nil {
		for k := range m {
			if isSensitiveKey(k) {
				m[k] = "***REDACTED***"
			}
		}
		if b, err := json.Marshal(m); err == nil {
			return truncate(string(b), MaxParamsSummaryLen)
		}
	}
	return truncate(string(params), MaxParamsSummaryLen)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
