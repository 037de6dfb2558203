// Package archive keeps a local SQLite record of past runs and the
// rows they appended. It is a best-effort audit trail: every write is
// advisory and a failure never changes a run's outcome.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run is one recorded orchestrator invocation.
type Run struct {
	ID               string    `db:"id"`
	StartedAt        time.Time `db:"started_at"`
	FinishedAt       time.Time `db:"finished_at"`
	EmailsProcessed  int       `db:"emails_processed"`
	EmailsFiltered   int       `db:"emails_filtered"`
	RowsAdded        int       `db:"rows_added"`
	EmailsMarkedRead int       `db:"emails_marked_read"`
}

// Row is one appended spreadsheet row as recorded for audit.
type Row struct {
	RunID     string `db:"run_id"`
	MessageID string `db:"message_id"`
	Sender    string `db:"sender"`
	Subject   string `db:"subject"`
	SentAt    string `db:"sent_at"`
	Keywords  string `db:"keywords"`
}

// Archive wraps the SQLite database.
type Archive struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens (or creates) the archive database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func Open(dbPath string, logger *slog.Logger) (*Archive, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	a := &Archive{db: db, logger: logger}
	if err := a.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return a, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (a *Archive) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := a.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = a.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := a.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordRun stores a run and its appended rows in one transaction.
func (a *Archive) RecordRun(ctx context.Context, run Run, rows []Row) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at,
			emails_processed, emails_filtered, rows_added, emails_marked_read
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.EmailsProcessed, run.EmailsFiltered, run.RowsAdded, run.EmailsMarkedRead,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO run_rows (
			run_id, message_id, sender, subject, sent_at, keywords
		) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing row insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			run.ID, r.MessageID, r.Sender, r.Subject, r.SentAt, r.Keywords,
		); err != nil {
			return fmt.Errorf("inserting row %s: %w", r.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	a.logger.Debug("run archived", "run_id", run.ID, "rows", len(rows))
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (a *Archive) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 10
	}
	var runs []Run
	err := a.db.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// RowsForRun returns the rows recorded for one run.
func (a *Archive) RowsForRun(ctx context.Context, runID string) ([]Row, error) {
	var rows []Row
	err := a.db.SelectContext(ctx, &rows,
		"SELECT * FROM run_rows WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("querying rows for run %s: %w", runID, err)
	}
	return rows, nil
}
