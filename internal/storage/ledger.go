package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// SyncRun records one catalog synchronization.
type SyncRun struct {
	ID         uuid.UUID `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Forced     bool      `json:"forced"`
	Fetched    int       `json:"fetched"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

// Ledger is the append-only history of sync runs.
type Ledger interface {
	RecordRun(ctx context.Context, run SyncRun) error
	// LastRun returns ErrNotFound when no run has been recorded.
	LastRun(ctx context.Context) (SyncRun, error)
	// Runs returns up to limit runs, newest first.
	Runs(ctx context.Context, limit int) ([]SyncRun, error)
	Close() error
}

// MemoryLedger keeps runs in process memory.
type MemoryLedger struct {
	mu   sync.Mutex
	runs []SyncRun
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) RecordRun(_ context.Context, run SyncRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *MemoryLedger) LastRun(ctx context.Context) (SyncRun, error) {
	runs, _ := l.Runs(ctx, 1)
	if len(runs) == 0 {
		return SyncRun{}, ErrNotFound
	}
	return runs[0], nil
}

func (l *MemoryLedger) Runs(_ context.Context, limit int) ([]SyncRun, error) {
	l.mu.Lock()
	out := append([]SyncRun(nil), l.runs...)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) Close() error { return nil }
