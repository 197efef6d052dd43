// Package store persists scan runs and their findings in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/helloscan/helloscan/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// Run is one persisted scan.
type Run struct {
	ID            string
	Root          string
	StartedAt     time.Time
	Duration      time.Duration
	TotalFiles    int
	ScannedFiles  int
	TotalRules    int
	FindingsCount int
	Partial       bool
}

// Store manages the SQLite result database.
type Store struct {
	db     *sql.DB
	dbPath string
	lock   *flock.Flock
}

// Open opens (creating if needed) the database at dbPath. ":memory:" opens
// a private in-memory database.
func Open(dbPath string) (*Store, error) {
	s := &Store{dbPath: dbPath}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		s.lock = flock.New(dbPath + ".lock")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA busy_timeout=5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// SaveRun stores run and its findings in one transaction. An empty run.ID
// is replaced with a new one; the ID used is returned. Concurrent writers
// from other processes are serialized through an advisory lock file.
func (s *Store) SaveRun(ctx context.Context, run Run, findings []types.Finding) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if s.lock != nil {
		ok, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil {
			return "", fmt.Errorf("lock %s: %w", s.lock.Path(), err)
		}
		if !ok {
			return "", fmt.Errorf("lock %s: not acquired", s.lock.Path())
		}
		defer s.lock.Unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO scan_runs
		(id, root, started_at, duration_ms, total_files, scanned_files, total_rules, findings_count, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.StartedAt.UTC(), run.Duration.Milliseconds(),
		run.TotalFiles, run.ScannedFiles, run.TotalRules, len(findings), run.Partial)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO findings
		(run_id, rule_id, path, line, col, severity, message, tags, suggestion, snippet, context, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		tags, err := json.Marshal(nonNil(f.Tags))
		if err != nil {
			return "", err
		}
		fctx := []byte("{}")
		if len(f.Context) > 0 {
			if fctx, err = json.Marshal(f.Context); err != nil {
				return "", fmt.Errorf("finding context for %s: %w", f.RuleID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, f.RuleID, f.Path, f.Line, f.Column, string(f.Severity),
			f.Message, string(tags), f.Suggestion, f.Snippet, string(fctx), f.Fingerprint()); err != nil {
			return "", fmt.Errorf("insert finding: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, root, started_at, duration_ms, total_files, scanned_files, total_rules, findings_count, partial
		FROM scan_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.ID, &r.Root, &r.StartedAt, &ms, &r.TotalFiles, &r.ScannedFiles,
			&r.TotalRules, &r.FindingsCount, &r.Partial); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Findings returns the findings of one run in insertion order.
func (s *Store) Findings(ctx context.Context, runID string) ([]types.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, path, line, col, severity, message, tags, suggestion, snippet, context
		FROM findings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	out := []types.Finding{}
	for rows.Next() {
		var f types.Finding
		var sev, tags, fctx string
		if err := rows.Scan(&f.RuleID, &f.Path, &f.Line, &f.Column, &sev, &f.Message, &tags,
			&f.Suggestion, &f.Snippet, &fctx); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Severity = types.Severity(sev)
		if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if len(f.Tags) == 0 {
			f.Tags = nil
		}
		if fctx != "{}" {
			if err := json.Unmarshal([]byte(fctx), &f.Context); err != nil {
				return nil, fmt.Errorf("decode context: %w", err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
