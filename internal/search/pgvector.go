package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorStore implements VectorStore as a Postgres table with an HNSW
// cosine index. The pool must have pgvector types registered.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	collection string
	table      string // sanitized identifier
	dims       int
	logger     *slog.Logger
}

// NewPgvectorStore returns a store keeping collection in its own table.
func NewPgvectorStore(pool *pgxpool.Pool, collection string, dims int, logger *slog.Logger) (*PgvectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("search: pgvector collection is required")
	}
	if dims <= 0 {
		return nil, fmt.Errorf("search: pgvector dimensions must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PgvectorStore{
		pool:       pool,
		collection: collection,
		table:      pgx.Identifier{"vec_" + collection}.Sanitize(),
		dims:       dims,
		logger:     logger,
	}, nil
}

// Collection returns the logical collection name.
func (s *PgvectorStore) Collection() string { return s.collection }

// EnsureCollection creates the table and its cosine HNSW index.
func (s *PgvectorStore) EnsureCollection(ctx context.Context) error {
	index := pgx.Identifier{"vec_" + s.collection + "_hnsw"}.Sanitize()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, index, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("search: ensure pgvector table %s: %w", s.table, err)
		}
	}
	return nil
}

// Upsert writes all points in one batch; an existing id is overwritten.
func (s *PgvectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, text, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET text = EXCLUDED.text, metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding, updated_at = now()`, s.table)

	batch := &pgx.Batch{}
	for _, p := range points {
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("search: marshal metadata for %s: %w", p.ID, err)
		}
		batch.Queue(sql, p.ID, p.Text, meta, pgvector.NewVector(p.Vector))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("search: pgvector upsert %d points: %w", len(points), err)
	}
	return nil
}

// Query orders by cosine distance (<=>) and converts it back to similarity.
func (s *PgvectorStore) Query(ctx context.Context, q Query) ([]Hit, error) {
	if q.TopK <= 0 {
		return []Hit{}, nil
	}
	filter := []byte("{}")
	if len(q.Filter) > 0 {
		var err error
		if filter, err = json.Marshal(q.Filter); err != nil {
			return nil, fmt.Errorf("search: marshal filter: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, text, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1
		LIMIT $3`, s.table),
		pgvector.NewVector(q.Vector), filter, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: pgvector query: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Hit, error) {
		var (
			h     Hit
			meta  []byte
			score float64
		)
		if err := row.Scan(&h.ID, &h.Text, &meta, &score); err != nil {
			return Hit{}, err
		}
		h.Score = float32(score)
		h.Metadata = map[string]string{}
		if err := json.Unmarshal(meta, &h.Metadata); err != nil {
			return Hit{}, fmt.Errorf("metadata for %s: %w", h.ID, err)
		}
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search: pgvector scan: %w", err)
	}
	return hits, nil
}

// Count returns the number of rows.
func (s *PgvectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("search: pgvector count: %w", err)
	}
	return n, nil
}

// Reset drops the table and recreates it empty.
func (s *PgvectorStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("search: drop pgvector table %s: %w", s.table, err)
	}
	s.logger.Warn("pgvector: collection dropped", "collection", s.collection)
	return s.EnsureCollection(ctx)
}

// Healthy pings the pool.
func (s *PgvectorStore) Healthy(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("search: postgres unhealthy: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the storage layer.
func (s *PgvectorStore) Close() error { return nil }
