package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentperch/perchgate/internal/domain/audit"
)

// ActionLog implements audit.ActionLog over the shared SQLite store. All
// writers treat it as best-effort; this adapter just reports errors and
// lets call sites decide to drop them.
type ActionLog struct {
	store *Store
}

// NewActionLog creates the general action log adapter.
func NewActionLog(store *Store) *ActionLog {
	return &ActionLog{store: store}
}

var _ audit.ActionLog = (*ActionLog)(nil)

// LogAction appends one row to the action log.
func (l *ActionLog) LogAction(ctx context.Context, kind, status, detail string, metadata map[string]interface{}) error {
	var meta string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(b)
	}

	_, err := l.store.db.ExecContext(ctx, `INSERT INTO action_log
		(kind, status, detail, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		kind, status, detail, meta, l.store.now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert action log: %w", err)
	}
	return nil
}

// RecentActions returns the newest limit rows of a given kind. Used by
// audit queries and tests.
func (l *ActionLog) RecentActions(ctx context.Context, kind string, limit int) ([]ActionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.store.db.QueryContext(ctx, `SELECT kind, status, detail, metadata
		FROM action_log WHERE kind = ?
		ORDER BY id DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	defer rows.Close()

	var out []ActionRow
	for rows.Next() {
		var r ActionRow
		if err := rows.Scan(&r.Kind, &r.Status, &r.Detail, &r.Metadata); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActionRow is one action log entry as stored.
type ActionRow struct {
	Kind     string
	Status   string
	Detail   string
	Metadata string
}
