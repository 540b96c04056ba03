package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentperch/perchgate/internal/domain/audit"
)

// TrailStore implements audit.TrailStore over the shared SQLite store.
type TrailStore struct {
	store *Store
}

// NewTrailStore creates the audit trail adapter.
func NewTrailStore(store *Store) *TrailStore {
	return &TrailStore{store: store}
}

var _ audit.TrailStore = (*TrailStore)(nil)

const mutationColumns = `id, correlation_id, original_correlation_id, tool_name,
	params_hash, params_summary, status, result_summary, rollback_hint,
	error_message, elapsed_ms, created_at, completed_at`

// CheckAndInsertPending runs the duplicate lookup and the pending insert in
// one immediate transaction. Two concurrent calls with the same hash cannot
// both observe "no recent success" and then both insert after one of them
// completes: the transaction is the serialization point.
func (t *TrailStore) CheckAndInsertPending(ctx context.Context, rec *audit.MutationRecord, window time.Duration) (int64, *audit.MutationRecord, error) {
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	cutoff := t.store.now().Add(-window).UnixNano()
	row := tx.QueryRowContext(ctx, `SELECT `+mutationColumns+`
		FROM mutation_audit
		WHERE params_hash = ? AND status = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		rec.ParamsHash, string(audit.StatusSuccess), cutoff)

	original, err := scanMutation(row)
	switch {
	case err == nil:
		// Recent success exists: nothing to insert, report the original.
		return 0, original, nil
	case errors.Is(err, sql.ErrNoRows):
		// No duplicate; fall through to the insert.
	default:
		return 0, nil, fmt.Errorf("duplicate lookup: %w", err)
	}

	id, err := insertMutation(ctx, tx, rec)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return id, nil, nil
}

// InsertDuplicate inserts a record created directly in the Duplicate state.
func (t *TrailStore) InsertDuplicate(ctx context.Context, rec *audit.MutationRecord) (int64, error) {
	if rec.Status != audit.StatusDuplicate {
		return 0, fmt.Errorf("record status %q, want %q", rec.Status, audit.StatusDuplicate)
	}
	if rec.OriginalCorrelationID == "" {
		return 0, errors.New("duplicate record missing original correlation id")
	}
	return insertMutation(ctx, t.store.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMutation(ctx context.Context, db execer, rec *audit.MutationRecord) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO mutation_audit
		(correlation_id, original_correlation_id, tool_name, params_hash,
		 params_summary, status, result_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CorrelationID, rec.OriginalCorrelationID, rec.ToolName,
		rec.ParamsHash, rec.ParamsSummary, string(rec.Status),
		rec.ResultSummary, rec.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert audit record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// CompleteSuccess transitions a Pending record to Success. The WHERE clause
// on status makes the transition exactly-once: a row already finalized is
// left untouched and the caller gets ErrAlreadyFinal.
func (t *TrailStore) CompleteSuccess(ctx context.Context, id int64, resultSummary, rollbackHint string, elapsed time.Duration) error {
	res, err := t.store.db.ExecContext(ctx, `UPDATE mutation_audit
		SET status = ?, result_summary = ?, rollback_hint = ?, elapsed_ms = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(audit.StatusSuccess), resultSummary, rollbackHint,
		elapsed.Milliseconds(), t.store.now().UnixNano(),
		id, string(audit.StatusPending))
	if err != nil {
		return fmt.Errorf("complete success: %w", err)
	}
	return t.checkTransition(ctx, res, id)
}

// CompleteFailure transitions a Pending record to Failed.
func (t *TrailStore) CompleteFailure(ctx context.Context, id int64, errorMessage string, elapsed time.Duration) error {
	res, err := t.store.db.ExecContext(ctx, `UPDATE mutation_audit
		SET status = ?, error_message = ?, elapsed_ms = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(audit.StatusFailed), errorMessage,
		elapsed.Milliseconds(), t.store.now().UnixNano(),
		id, string(audit.StatusPending))
	if err != nil {
		return fmt.Errorf("complete failure: %w", err)
	}
	return t.checkTransition(ctx, res, id)
}

// checkTransition distinguishes "row missing" from "row already final" when
// a completion update touched nothing.
func (t *TrailStore) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var status string
	err = t.store.db.QueryRowContext(ctx,
		`SELECT status FROM mutation_audit WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	return fmt.Errorf("record %d in state %s: %w", id, status, audit.ErrAlreadyFinal)
}

// Get returns a record by id.
func (t *TrailStore) Get(ctx context.Context, id int64) (*audit.MutationRecord, error) {
	row := t.store.db.QueryRowContext(ctx, `SELECT `+mutationColumns+`
		FROM mutation_audit WHERE id = ?`, id)
	rec, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return rec, nil
}

// ListByHash returns all records with the given params hash, newest first.
// Used by audit queries and tests.
func (t *TrailStore) ListByHash(ctx context.Context, paramsHash string) ([]*audit.MutationRecord, error) {
	rows, err := t.store.db.QueryContext(ctx, `SELECT `+mutationColumns+`
		FROM mutation_audit WHERE params_hash = ?
		ORDER BY created_at DESC, id DESC`, paramsHash)
	if err != nil {
		return nil, fmt.Errorf("list by hash: %w", err)
	}
	defer rows.Close()

	var recs []*audit.MutationRecord
	for rows.Next() {
		rec, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (*audit.MutationRecord, error) {
	var rec audit.MutationRecord
	var status string
	var createdNs int64
	var completedNs sql.NullInt64
	err := row.Scan(&rec.ID, &rec.CorrelationID, &rec.OriginalCorrelationID,
		&rec.ToolName, &rec.ParamsHash, &rec.ParamsSummary, &status,
		&rec.ResultSummary, &rec.RollbackHint, &rec.ErrorMessage,
		&rec.ElapsedMS, &createdNs, &completedNs)
	if err != nil {
		return nil, err
	}
	rec.Status = audit.Status(status)
	rec.CreatedAt = time.Unix(0, createdNs).UTC()
	if completedNs.Valid {
		t := time.Unix(0, completedNs.Int64).UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}
