//go:build integration

package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/michi/internal/storage"
	"github.com/ashita-ai/michi/internal/testutil"
	"github.com/ashita-ai/michi/migrations"
)

func TestPostgresLedger(t *testing.T) {
	ctx := context.Background()
	tc, err := testutil.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(tc.Terminate)

	db, err := storage.New(ctx, tc.DSN, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.RunMigrations(ctx, migrations.FS))
	// Applying twice is a no-op.
	require.NoError(t, db.RunMigrations(ctx, migrations.FS))

	testLedger(t, storage.NewPostgresLedger(db))
}
