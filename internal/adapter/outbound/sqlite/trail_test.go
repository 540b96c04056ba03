package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentperch/perchgate/internal/domain/audit"
)

func pendingRecord(clock *testClock, correlationID, paramsHash string) *audit.MutationRecord {
	return &audit.MutationRecord{
		CorrelationID: correlationID,
		ToolName:      "post_tweet",
		ParamsHash:    paramsHash,
		ParamsSummary: `{"text":"hello"}`,
		Status:        audit.StatusPending,
		CreatedAt:     clock.Now(),
	}
}

func TestCheckAndInsertPendingMiss(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	id, original, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatalf("CheckAndInsertPending() error = %v", err)
	}
	if original != nil {
		t.Fatalf("unexpected original: %+v", original)
	}
	if id == 0 {
		t.Fatal("no id assigned")
	}

	rec, err := trail.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != audit.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if rec.CorrelationID != "corr-1" {
		t.Errorf("correlation id = %s", rec.CorrelationID)
	}
	if !rec.CreatedAt.Equal(clock.Now()) {
		t.Errorf("created at = %v, want %v", rec.CreatedAt, clock.Now())
	}
}

func TestCheckAndInsertPendingHitInsideWindow(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	id, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := trail.CompleteSuccess(ctx, id, "tweet 1 posted", "", 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Minute)
	newID, original, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-2", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatalf("CheckAndInsertPending() error = %v", err)
	}
	if original == nil {
		t.Fatal("expected a duplicate hit")
	}
	if newID != 0 {
		t.Errorf("hit must insert nothing, got id %d", newID)
	}
	if original.CorrelationID != "corr-1" {
		t.Errorf("original correlation id = %s", original.CorrelationID)
	}
	if original.ResultSummary != "tweet 1 posted" {
		t.Errorf("original result = %q", original.ResultSummary)
	}
}

func TestCheckAndInsertPendingMissOutsideWindow(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	id, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := trail.CompleteSuccess(ctx, id, "posted", "", 0); err != nil {
		t.Fatal(err)
	}

	clock.Advance(6 * time.Minute)
	newID, original, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-2", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatalf("CheckAndInsertPending() error = %v", err)
	}
	if original != nil {
		t.Fatalf("success outside window must not hit: %+v", original)
	}
	if newID == 0 {
		t.Error("no id assigned")
	}
}

func TestCheckAndInsertPendingIgnoresNonSuccess(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	// A pending attempt and a failed attempt with the same hash exist, but
	// neither blocks a new attempt: only completed successes deduplicate.
	if _, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	failedID, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-2", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := trail.CompleteFailure(ctx, failedID, "api timeout", 0); err != nil {
		t.Fatal(err)
	}

	_, original, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-3", "hash-a"), 5*time.Minute)
	if err != nil {
		t.Fatalf("CheckAndInsertPending() error = %v", err)
	}
	if original != nil {
		t.Errorf("pending and failed attempts must not deduplicate: %+v", original)
	}
}

func TestCheckAndInsertPendingPrefersNewestSuccess(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	firstID, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := trail.CompleteSuccess(ctx, firstID, "first", "", 0); err != nil {
		t.Fatal(err)
	}

	// Insert a second success directly; the window lookup must prefer it.
	clock.Advance(time.Minute)
	rec := pendingRecord(clock, "corr-2", "hash-a")
	rec.Status = audit.StatusSuccess
	rec.ResultSummary = "second"
	if _, err := insertMutation(ctx, trail.store.db, rec); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	_, original, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-3", "hash-a"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if original == nil || original.ResultSummary != "second" {
		t.Errorf("original = %+v, want the newest success", original)
	}
}

func TestInsertDuplicateValidation(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	rec := pendingRecord(clock, "corr-1", "hash-a")
	if _, err := trail.InsertDuplicate(ctx, rec); err == nil {
		t.Error("non-duplicate status must be rejected")
	}

	rec.Status = audit.StatusDuplicate
	if _, err := trail.InsertDuplicate(ctx, rec); err == nil {
		t.Error("missing original correlation id must be rejected")
	}

	rec.OriginalCorrelationID = "corr-0"
	id, err := trail.InsertDuplicate(ctx, rec)
	if err != nil {
		t.Fatalf("InsertDuplicate() error = %v", err)
	}
	got, err := trail.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != audit.StatusDuplicate || got.OriginalCorrelationID != "corr-0" {
		t.Errorf("stored duplicate = %+v", got)
	}
}

func TestCompleteSuccessExactlyOnce(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	id, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Second)
	if err := trail.CompleteSuccess(ctx, id, "posted", "delete_tweet 1", 1500*time.Millisecond); err != nil {
		t.Fatalf("CompleteSuccess() error = %v", err)
	}

	rec, err := trail.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != audit.StatusSuccess {
		t.Errorf("status = %s", rec.Status)
	}
	if rec.ResultSummary != "posted" || rec.RollbackHint != "delete_tweet 1" {
		t.Errorf("result = %q, rollback = %q", rec.ResultSummary, rec.RollbackHint)
	}
	if rec.ElapsedMS != 1500 {
		t.Errorf("elapsed ms = %d, want 1500", rec.ElapsedMS)
	}
	if rec.CompletedAt == nil || !rec.CompletedAt.Equal(clock.Now()) {
		t.Errorf("completed at = %v, want %v", rec.CompletedAt, clock.Now())
	}

	// Second completion of either flavor is rejected and changes nothing.
	if err := trail.CompleteSuccess(ctx, id, "again", "", 0); !errors.Is(err, audit.ErrAlreadyFinal) {
		t.Errorf("second CompleteSuccess error = %v, want ErrAlreadyFinal", err)
	}
	if err := trail.CompleteFailure(ctx, id, "late", 0); !errors.Is(err, audit.ErrAlreadyFinal) {
		t.Errorf("CompleteFailure after success error = %v, want ErrAlreadyFinal", err)
	}
	rec, _ = trail.Get(ctx, id)
	if rec.ResultSummary != "posted" {
		t.Errorf("finalized row was modified: %q", rec.ResultSummary)
	}
}

func TestCompleteFailure(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	id, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-1", "hash-a"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := trail.CompleteFailure(ctx, id, "api timeout", 700*time.Millisecond); err != nil {
		t.Fatalf("CompleteFailure() error = %v", err)
	}

	rec, err := trail.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != audit.StatusFailed {
		t.Errorf("status = %s", rec.Status)
	}
	if rec.ErrorMessage != "api timeout" {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
	if rec.ElapsedMS != 700 {
		t.Errorf("elapsed ms = %d", rec.ElapsedMS)
	}
}

func TestCompleteMissingRecord(t *testing.T) {
	trail := NewTrailStore(openTestStore(t, newTestClock()))
	ctx := context.Background()

	if err := trail.CompleteSuccess(ctx, 4242, "", "", 0); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("CompleteSuccess error = %v, want ErrNotFound", err)
	}
	if err := trail.CompleteFailure(ctx, 4242, "", 0); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("CompleteFailure error = %v, want ErrNotFound", err)
	}
}

func TestGetMissing(t *testing.T) {
	trail := NewTrailStore(openTestStore(t, newTestClock()))
	if _, err := trail.Get(context.Background(), 4242); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestListByHash(t *testing.T) {
	clock := newTestClock()
	trail := NewTrailStore(openTestStore(t, clock))
	ctx := context.Background()

	for i, corr := range []string{"corr-1", "corr-2"} {
		id, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, corr, "hash-a"), 0)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			if err := trail.CompleteFailure(ctx, id, "timeout", 0); err != nil {
				t.Fatal(err)
			}
		}
		clock.Advance(time.Minute)
	}
	if _, _, err := trail.CheckAndInsertPending(ctx, pendingRecord(clock, "corr-other", "hash-b"), 0); err != nil {
		t.Fatal(err)
	}

	recs, err := trail.ListByHash(ctx, "hash-a")
	if err != nil {
		t.Fatalf("ListByHash() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Newest first.
	if recs[0].CorrelationID != "corr-2" || recs[1].CorrelationID != "corr-1" {
		t.Errorf("order = %s, %s", recs[0].CorrelationID, recs[1].CorrelationID)
	}
}
