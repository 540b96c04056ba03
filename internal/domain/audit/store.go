package audit

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for trail store operations.
var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("audit record not found")
	// ErrAlreadyFinal is returned when a completion is attempted on a
	// record that already reached a terminal state. Callers treat it as an
	// idempotent no-op or a caller bug; the stored record is never
	// overwritten.
	ErrAlreadyFinal = errors.New("audit record already finalized")
)

// TrailStore persists the mutation audit trail.
// Interface owned by the domain per hexagonal architecture.
type TrailStore interface {
	// CheckAndInsertPending atomically looks up the most recent successful
	// record with rec.ParamsHash created within window, and, when none
	// exists, inserts rec as Pending. The lookup and insert share one
	// transaction: two concurrent duplicate-candidates must resolve to a
	// single non-duplicate winner.
	//
	// On a hit it returns (0, original, nil) and inserts nothing; the
	// caller records the duplicate explicitly. On a miss it returns the
	// new record id.
	CheckAndInsertPending(ctx context.Context, rec *MutationRecord, window time.Duration) (int64, *MutationRecord, error)

	// InsertDuplicate inserts rec directly in the Duplicate state,
	// referencing rec.OriginalCorrelationID.
	InsertDuplicate(ctx context.Context, rec *MutationRecord) (int64, error)

	// CompleteSuccess transitions a Pending record to Success.
	// Returns ErrAlreadyFinal if the record is no longer Pending.
	CompleteSuccess(ctx context.Context, id int64, resultSummary, rollbackHint string, elapsed time.Duration) error

	// CompleteFailure transitions a Pending record to Failed.
	// Returns ErrAlreadyFinal if the record is no longer Pending.
	CompleteFailure(ctx context.Context, id int64, errorMessage string, elapsed time.Duration) error

	// Get returns a record by id.
	Get(ctx context.Context, id int64) (*MutationRecord, error)
}

// ActionLog is the general best-effort decision log collaborator. Failures
// to write are tolerated at call sites and never fail an evaluation.
type ActionLog interface {
	LogAction(ctx context.Context, kind, status, detail string, metadata map[string]interface{}) error
}
