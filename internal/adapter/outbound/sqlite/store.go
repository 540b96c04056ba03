// Package sqlite provides the durable store backing the governance
// gateway: the mutation audit trail, rate counters, and the general
// action log, all in one SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped on any schema change.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mutation_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	correlation_id TEXT NOT NULL UNIQUE,
	original_correlation_id TEXT NOT NULL DEFAULT '',
	tool_name TEXT NOT NULL,
	params_hash TEXT NOT NULL,
	params_summary TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	result_summary TEXT NOT NULL DEFAULT '',
	rollback_hint TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_mutation_audit_dedup
	ON mutation_audit (params_hash, status, created_at);

CREATE TABLE IF NOT EXISTS rate_counters (
	key TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	period_start INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS action_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// Config contains configuration for the SQLite store.
type Config struct {
	// Path is the database file path, or a "file:..." DSN for tests.
	Path string

	// MaxOpenConns caps open connections. Default: 10.
	MaxOpenConns int

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Path:         "perchgate.db",
		MaxOpenConns: 10,
		BusyTimeout:  5 * time.Second,
	}
}

// Store wraps the SQLite database shared by the trail, counter, and action
// log adapters.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// now is a test seam for dedup-window and counter-period tests.
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the store's clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database and bootstraps the schema.
// Transactions default to immediate mode so the trail's check-and-insert
// serializes against concurrent writers.
func Open(cfg Config, logger *slog.Logger, opts ...Option) (*Store, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &Store{
		db:     db,
		logger: logger.With("component", "sqlite"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("store initialized", "path", cfg.Path)
	return s, nil
}

func dsn(cfg Config) string {
	base := cfg.Path
	if len(base) < 5 || base[:5] != "file:" {
		base = "file:" + base
	}
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	sep := "?"
	for i := 0; i < len(base); i++ {
		if base[i] == '?' {
			sep = "&"
			break
		}
	}
	return base + sep + q.Encode()
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("schema version mismatch: expected %d, got %d", schemaVersion, version)
	}
	return nil
}

// DB exposes the underlying handle for adapters in this package.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
