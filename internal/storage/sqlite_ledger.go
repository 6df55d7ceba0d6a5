package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	forced      INTEGER NOT NULL DEFAULT 0,
	fetched     INTEGER NOT NULL DEFAULT 0,
	indexed     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);
`

// SQLiteLedger stores sync runs in a local SQLite file.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLiteLedger opens (creating if needed) the ledger at path. Use
// ":memory:" for a throwaway ledger.
func OpenSQLiteLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create sqlite schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) RecordRun(ctx context.Context, run SyncRun) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, finished_at, forced, fetched, indexed, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Forced,
		run.Fetched, run.Indexed, run.Skipped, run.Error)
	if err != nil {
		return fmt.Errorf("storage: insert sync run: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) LastRun(ctx context.Context) (SyncRun, error) {
	runs, err := l.Runs(ctx, 1)
	if err != nil {
		return SyncRun{}, err
	}
	if len(runs) == 0 {
		return SyncRun{}, ErrNotFound
	}
	return runs[0], nil
}

func (l *SQLiteLedger) Runs(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, forced, fetched, indexed, skipped, error
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []SyncRun
	for rows.Next() {
		var (
			r               SyncRun
			id              string
			started, finish int64
		)
		if err := rows.Scan(&id, &started, &finish, &r.Forced, &r.Fetched, &r.Indexed, &r.Skipped, &r.Error); err != nil {
			return nil, fmt.Errorf("storage: scan sync run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("storage: sync run id %q: %w", id, err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finish).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
