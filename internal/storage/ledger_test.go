package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/michi/internal/storage"
)

func sampleRun(started time.Time, indexed int) storage.SyncRun {
	return storage.SyncRun{
		ID:         uuid.New(),
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Fetched:    indexed + 1,
		Indexed:    indexed,
		Skipped:    1,
	}
}

func testLedger(t *testing.T, ledger storage.Ledger) {
	t.Helper()
	ctx := context.Background()

	_, err := ledger.LastRun(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sampleRun(base, 10)
	second := sampleRun(base.Add(time.Hour), 12)
	second.Forced = true
	second.Error = "partial"

	require.NoError(t, ledger.RecordRun(ctx, first))
	require.NoError(t, ledger.RecordRun(ctx, second))

	last, err := ledger.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	assert.True(t, last.Forced)
	assert.Equal(t, 12, last.Indexed)
	assert.Equal(t, "partial", last.Error)
	assert.True(t, second.StartedAt.Equal(last.StartedAt))

	runs, err := ledger.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.ID, runs[1].ID)

	runs, err = ledger.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, ledger.Close())
}

func TestMemoryLedger(t *testing.T) {
	testLedger(t, storage.NewMemoryLedger())
}

func TestSQLiteLedger(t *testing.T) {
	ledger, err := storage.OpenSQLiteLedger(context.Background(), ":memory:")
	require.NoError(t, err)
	testLedger(t, ledger)
}

func TestSQLiteLedgerPersists(t *testing.T) {
	path := t.TempDir() + "/ledger.db"
	ctx := context.Background()

	ledger, err := storage.OpenSQLiteLedger(ctx, path)
	require.NoError(t, err)
	run := sampleRun(time.Now().UTC(), 3)
	require.NoError(t, ledger.RecordRun(ctx, run))
	require.NoError(t, ledger.Close())

	reopened, err := storage.OpenSQLiteLedger(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	last, err := reopened.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, last.ID)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	err := storage.WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetrySucceeds(t *testing.T) {
	calls := 0
	err := storage.WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
