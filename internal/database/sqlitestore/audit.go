// Package sqlitestore provides SQLite-backed store implementations.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

// Action is a report mutation kind.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Entry is one successful report mutation.
type Entry struct {
	ID         int64             `json:"id"`
	ActorEmail string            `json:"actor_email"`
	ReportID   string            `json:"report_id"`
	Action     Action            `json:"action"`
	Fields     map[string]string `json:"fields,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS report_audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_email TEXT NOT NULL,
	report_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	fields      TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_audit_report ON report_audit_log(report_id);
CREATE INDEX IF NOT EXISTS idx_report_audit_actor ON report_audit_log(actor_email);
`

// AuditStore records report mutations made through this front-end.
type AuditStore struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path with tracing enabled
// and applies the schema.
func Open(path string) (*AuditStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := otelsql.Open("sqlite", dsn, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	store, err := NewAuditStore(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewAuditStore wraps an existing database and applies the schema.
func NewAuditStore(ctx context.Context, db *sql.DB) (*AuditStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Record appends an entry. A zero CreatedAt is set to now.
func (s *AuditStore) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("marshal audit fields: %w", err)
	}
	if e.Fields == nil {
		fields = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_audit_log (actor_email, report_id, action, fields, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ActorEmail, e.ReportID, string(e.Action), string(fields), e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// List returns the most recent entries first. A non-positive limit means 100.
func (s *AuditStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_email, report_id, action, fields, created_at
		FROM report_audit_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListForReport returns the history of a single report, oldest first.
func (s *AuditStore) ListForReport(ctx context.Context, reportID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_email, report_id, action, fields, created_at
		FROM report_audit_log WHERE report_id = ? ORDER BY id ASC
	`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of recorded entries.
func (s *AuditStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_audit_log`).Scan(&n)
	return n, err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var action, fields, createdAt string
		if err := rows.Scan(&e.ID, &e.ActorEmail, &e.ReportID, &action, &fields, &createdAt); err != nil {
			continue
		}
		e.Action = Action(action)
		if fields != "" && fields != "{}" {
			_ = json.Unmarshal([]byte(fields), &e.Fields)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
