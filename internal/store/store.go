package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding call records, weekly reports, and
// the category/tenant reference tables. All timestamps are persisted as UTC
// RFC3339 text so that range predicates compare chronologically.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Transactions start as immediate write transactions so status transitions
// take the write lock up front instead of failing on upgrade mid-transaction.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn between concurrent workers in one process.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA foreign_keys=ON`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS call_categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			assignment_source TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS call_sub_categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER NOT NULL REFERENCES call_categories(id),
			name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS call_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL,
			sub_account_id TEXT NOT NULL DEFAULT '',
			server_id TEXT NOT NULL DEFAULT '',
			provider_call_id TEXT NOT NULL,
			started_at TEXT,
			duration_sec INTEGER NOT NULL DEFAULT 0,
			did TEXT NOT NULL DEFAULT '',
			source_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			category_id INTEGER,
			sub_category_id INTEGER,
			sub_category_label TEXT NOT NULL DEFAULT '',
			confidence REAL,
			assignment_source TEXT NOT NULL DEFAULT '',
			assigned_at TEXT,
			report_id TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
			UNIQUE(tenant_id, sub_account_id, server_id, provider_call_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_tenant_started
			ON call_records(tenant_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_report
			ON call_records(report_id)`,
		`CREATE TABLE IF NOT EXISTS weekly_reports (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			sub_account_id TEXT NOT NULL,
			server_id TEXT NOT NULL DEFAULT '',
			week_start TEXT NOT NULL,
			total_calls INTEGER NOT NULL DEFAULT 0,
			answered_calls INTEGER NOT NULL DEFAULT 0,
			missed_calls INTEGER NOT NULL DEFAULT 0,
			calls_with_transcript INTEGER NOT NULL DEFAULT 0,
			total_duration_sec INTEGER NOT NULL DEFAULT 0,
			avg_duration_sec INTEGER NOT NULL DEFAULT 0,
			first_call_at TEXT,
			last_call_at TEXT,
			metrics_json TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			document_path TEXT NOT NULL DEFAULT '',
			spreadsheet_path TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			generated_at TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
			UNIQUE(tenant_id, sub_account_id, server_id, week_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weekly_reports_status
			ON weekly_reports(status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func timeToDB(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func timeFromDB(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func nowDB() string {
	return time.Now().UTC().Format(time.RFC3339)
}
