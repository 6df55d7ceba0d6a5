package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresLedger stores sync runs in the sync_runs table.
type PostgresLedger struct {
	db *DB
}

// NewPostgresLedger returns a ledger backed by db. Run migrations first.
func NewPostgresLedger(db *DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) RecordRun(ctx context.Context, run SyncRun) error {
	return WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		_, err := l.db.pool.Exec(ctx, `
			INSERT INTO sync_runs (id, started_at, finished_at, forced, fetched, indexed, skipped, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
			run.ID, run.StartedAt, run.FinishedAt, run.Forced, run.Fetched, run.Indexed, run.Skipped, run.Error)
		if err != nil {
			return fmt.Errorf("storage: insert sync run: %w", err)
		}
		return nil
	})
}

func (l *PostgresLedger) LastRun(ctx context.Context) (SyncRun, error) {
	runs, err := l.Runs(ctx, 1)
	if err != nil {
		return SyncRun{}, err
	}
	if len(runs) == 0 {
		return SyncRun{}, ErrNotFound
	}
	return runs[0], nil
}

func (l *PostgresLedger) Runs(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.pool.Query(ctx, `
		SELECT id, started_at, finished_at, forced, fetched, indexed, skipped, COALESCE(error, '')
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query sync runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SyncRun, error) {
		var r SyncRun
		err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Forced, &r.Fetched, &r.Indexed, &r.Skipped, &r.Error)
		return r, err
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("storage: scan sync runs: %w", err)
	}
	return runs, nil
}

// Close is a no-op; the pool belongs to DB.
func (l *PostgresLedger) Close() error { return nil }
