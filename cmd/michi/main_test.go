package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/michi/internal/config"
	"github.com/ashita-ai/michi/internal/service/embedding"
	"github.com/ashita-ai/michi/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), "input %q", tt.in)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	err := run(ctx, testLogger(), []string{"frobnicate"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	err = run(ctx, testLogger(), []string{"chat", "hello"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-user")

	err = run(ctx, testLogger(), []string{"chat", "-user", "7"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-user")

	err = run(ctx, testLogger(), []string{"chat", "-user", "7", "-context", "[1,2]", "hi"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-context")

	assert.Empty(t, out.String())
}

func TestSelectEmbeddingProviderExplicit(t *testing.T) {
	cfg := config.Config{
		EmbeddingProvider:   "noop",
		EmbeddingDimensions: 16,
	}
	p, closeFn := newEmbeddingProvider(context.Background(), cfg, testLogger())
	assert.Nil(t, closeFn)
	assert.True(t, embedding.IsNoop(p))
	assert.Equal(t, 16, p.Dimensions())

	// openai without a key degrades to noop rather than failing startup.
	cfg.EmbeddingProvider = "openai"
	p, _ = newEmbeddingProvider(context.Background(), cfg, testLogger())
	assert.True(t, embedding.IsNoop(p))

	cfg.EmbeddingProvider = "ollama"
	cfg.OllamaURL = "http://127.0.0.1:1"
	cfg.OllamaModel = "bge-m3"
	p, _ = newEmbeddingProvider(context.Background(), cfg, testLogger())
	assert.False(t, embedding.IsNoop(p))
}

func TestSelectEmbeddingProviderAutoFallsBackToNoop(t *testing.T) {
	cfg := config.Config{
		EmbeddingProvider:   "auto",
		EmbeddingDimensions: 8,
		OllamaURL:           "http://127.0.0.1:1",
	}
	p, _ := newEmbeddingProvider(context.Background(), cfg, testLogger())
	assert.True(t, embedding.IsNoop(p))
}

func TestNewIndexNoopForcesMemoryStore(t *testing.T) {
	cfg := config.Config{
		VectorStore: "qdrant",
		QdrantURL:   "http://localhost:6333",
		Collection:  "courses",
	}
	idx, err := newIndex(cfg, nil, embedding.NewNoopProvider(8), testLogger())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	assert.Equal(t, "courses", idx.Collection())
	require.NoError(t, idx.Ensure(context.Background()))
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewIndexPgvectorNeedsDatabase(t *testing.T) {
	cfg := config.Config{VectorStore: "pgvector", Collection: "courses"}
	emb := embedding.NewOllamaProvider("http://127.0.0.1:1", "m", 8)
	_, err := newIndex(cfg, nil, emb, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNewIndexAutoWithoutBackends(t *testing.T) {
	cfg := config.Config{VectorStore: "auto", Collection: "courses"}
	emb := embedding.NewOllamaProvider("http://127.0.0.1:1", "m", 8)
	idx, err := newIndex(cfg, nil, emb, testLogger())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	assert.Equal(t, "courses", idx.Collection())
}

func TestNewLedger(t *testing.T) {
	ctx := context.Background()

	l, err := newLedger(ctx, config.Config{}, nil, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryLedger{}, l)

	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err = newLedger(ctx, config.Config{LedgerPath: path}, nil, testLogger())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	assert.IsType(t, &storage.SQLiteLedger{}, l)

	run := storage.SyncRun{
		ID:         uuid.New(),
		StartedAt:  time.Now().UTC().Add(-time.Second),
		FinishedAt: time.Now().UTC(),
		Fetched:    3,
		Indexed:    3,
	}
	require.NoError(t, l.RecordRun(ctx, run))
	last, err := l.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, last.Indexed)
}

func TestOpenDatabaseDisabled(t *testing.T) {
	db, err := openDatabase(context.Background(), config.Config{}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, db)
}
