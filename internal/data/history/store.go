package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pyscope/internal/core/ports"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store persists run summaries and their diagnostics in SQLite. One store
// serves one project database; a single connection avoids writer contention
// entirely and WAL keeps readers unblocked during watch-mode churn.
type Store struct {
	path string
	keep int
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string, busyTimeout time.Duration, keep int) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if keep <= 0 {
		keep = 100
	}

	// busy_timeout + WAL reduce lock conflicts during watch-mode churn.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, keep: keep, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores one run with its diagnostics and prunes runs beyond the
// retention limit, oldest first.
func (s *Store) RecordRun(ctx context.Context, run ports.RunSummary, diags []ports.Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	return s.withRetry("record run", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, started_at_utc, duration_ms, commit_hash, files, diagnostics, revision, computations, early_cutoffs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.Duration.Milliseconds(),
			run.Commit,
			run.Files,
			run.Diagnostics,
			int64(run.Revision),
			int64(run.Computations),
			int64(run.EarlyCutoffs),
		); err != nil {
			return err
		}

		if len(diags) > 0 {
			stmt, err := tx.PrepareContext(ctx, `
INSERT INTO run_diagnostics (run_id, path, line, col, rule, severity, message)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, d := range diags {
				if _, err := stmt.ExecContext(ctx, run.ID, d.Path, d.Line, d.Column, d.Rule, string(d.Severity), d.Message); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `
DELETE FROM runs WHERE id NOT IN (
  SELECT id FROM runs ORDER BY started_at_utc DESC, id DESC LIMIT ?
)
`, s.keep); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// LastRun returns the most recent run and its diagnostics. The bool is
// false when the store has no runs yet.
func (s *Store) LastRun(ctx context.Context) (ports.RunSummary, []ports.Diagnostic, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		run       ports.RunSummary
		startedAt string
		duration  int64
		rev       int64
		comps     int64
		cutoffs   int64
	)
	err := s.withRetry("load last run", func() error {
		return s.db.QueryRowContext(ctx, `
SELECT id, started_at_utc, duration_ms, commit_hash, files, diagnostics, revision, computations, early_cutoffs
FROM runs ORDER BY started_at_utc DESC, id DESC LIMIT 1
`).Scan(&run.ID, &startedAt, &duration, &run.Commit, &run.Files, &run.Diagnostics, &rev, &comps, &cutoffs)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.RunSummary{}, nil, false, nil
		}
		return ports.RunSummary{}, nil, false, err
	}

	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return ports.RunSummary{}, nil, false, fmt.Errorf("parse run timestamp %q: %w", startedAt, err)
	}
	run.StartedAt = ts.UTC()
	run.Duration = time.Duration(duration) * time.Millisecond
	run.Revision = uint64(rev)
	run.Computations = uint64(comps)
	run.EarlyCutoffs = uint64(cutoffs)

	diags, err := s.runDiagnostics(ctx, run.ID)
	if err != nil {
		return ports.RunSummary{}, nil, false, err
	}
	return run, diags, true, nil
}

// Runs returns up to limit runs started at or after since, oldest first.
// A non-positive limit means no limit.
func (s *Store) Runs(ctx context.Context, since time.Time, limit int) ([]ports.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	query := `
SELECT id, started_at_utc, duration_ms, commit_hash, files, diagnostics, revision, computations, early_cutoffs
FROM runs
`
	args := make([]any, 0, 2)
	if !since.IsZero() {
		query += " WHERE started_at_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query = `SELECT * FROM (` + query + ` ORDER BY started_at_utc DESC, id DESC LIMIT ?) ORDER BY started_at_utc ASC, id ASC`
	args = append(args, limit)

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]ports.RunSummary, 0)
	for rows.Next() {
		var (
			run       ports.RunSummary
			startedAt string
			duration  int64
			rev       int64
			comps     int64
			cutoffs   int64
		)
		if err := rows.Scan(&run.ID, &startedAt, &duration, &run.Commit, &run.Files, &run.Diagnostics, &rev, &comps, &cutoffs); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", startedAt, err)
		}
		run.StartedAt = ts.UTC()
		run.Duration = time.Duration(duration) * time.Millisecond
		run.Revision = uint64(rev)
		run.Computations = uint64(comps)
		run.EarlyCutoffs = uint64(cutoffs)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// DiffAgainstLast compares current findings with the most recent recorded
// run. The bool is false when no previous run exists to compare against.
func (s *Store) DiffAgainstLast(ctx context.Context, current []ports.Diagnostic) (ports.DiagnosticDiff, bool, error) {
	_, previous, ok, err := s.LastRun(ctx)
	if err != nil || !ok {
		return ports.DiagnosticDiff{}, false, err
	}
	return ports.DiffDiagnostics(previous, current), true, nil
}

func (s *Store) runDiagnostics(ctx context.Context, runID string) ([]ports.Diagnostic, error) {
	var rows *sql.Rows
	err := s.withRetry("load run diagnostics", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, `
SELECT path, line, col, rule, severity, message
FROM run_diagnostics WHERE run_id = ?
ORDER BY path ASC, line ASC, col ASC, rule ASC, message ASC
`, runID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	diags := make([]ports.Diagnostic, 0)
	for rows.Next() {
		var (
			d   ports.Diagnostic
			sev string
		)
		if err := rows.Scan(&d.Path, &d.Line, &d.Column, &d.Rule, &sev, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic row: %w", err)
		}
		d.Severity = ports.Severity(sev)
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostic rows: %w", err)
	}
	return diags, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}
