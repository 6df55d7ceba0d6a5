package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ashita-ai/michi/internal/model"
	"github.com/ashita-ai/michi/internal/service/embedding"
)

// DefaultBatchSize is the number of documents embedded per provider call.
const DefaultBatchSize = 100

// MaxTopK caps a single query.
const MaxTopK = 50

// Index is the course retrieval index: it embeds documents and queries and
// delegates storage to a VectorStore.
type Index struct {
	store    VectorStore
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewIndex composes a store with an embedding provider.
func NewIndex(store VectorStore, embedder embedding.Provider, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, embedder: embedder, logger: logger}
}

// Collection names the backing collection.
func (ix *Index) Collection() string { return ix.store.Collection() }

// Ensure creates the backing collection if needed.
func (ix *Index) Ensure(ctx context.Context) error {
	return ix.store.EnsureCollection(ctx)
}

// Index embeds docs in batches of batchSize and upserts them. A repeated ID
// overwrites the earlier document; within one call the last occurrence wins.
// It returns the number of distinct documents written.
func (ix *Index) Index(ctx context.Context, docs []model.CourseDocument, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	docs = dedupeLast(docs)

	written := 0
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}
		vecs, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("search: embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return written, fmt.Errorf("search: embedder returned %d vectors for %d documents", len(vecs), len(batch))
		}

		points := make([]Point, len(batch))
		for i, d := range batch {
			points[i] = Point{ID: d.ID, Text: d.Text, Metadata: d.Metadata, Vector: vecs[i].Slice()}
		}
		if err := ix.store.Upsert(ctx, points); err != nil {
			return written, err
		}
		written += len(batch)
		ix.logger.Debug("search: indexed batch", "from", start, "to", end, "collection", ix.Collection())
	}
	return written, nil
}

// Query returns up to topK documents nearest to text, closest first. Empty
// text or an empty index yields an empty, non-nil slice. topK is clamped to
// [1, MaxTopK].
func (ix *Index) Query(ctx context.Context, text string, topK int, filter Filter) ([]model.SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.SearchResult{}, nil
	}
	topK = max(1, min(topK, MaxTopK))

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	hits, err := ix.store.Query(ctx, Query{Text: text, Vector: vec.Slice(), TopK: topK, Filter: filter})
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		meta := h.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		results = append(results, model.SearchResult{
			ID:       h.ID,
			Text:     h.Text,
			Metadata: meta,
			Distance: 1 - float64(h.Score),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count reports the number of indexed documents.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	return ix.store.Count(ctx)
}

// Reset destroys every indexed document. It cannot be undone.
func (ix *Index) Reset(ctx context.Context) error {
	ix.logger.Warn("search: resetting index", "collection", ix.Collection())
	return ix.store.Reset(ctx)
}

// Healthy reports whether the backing store is reachable.
func (ix *Index) Healthy(ctx context.Context) error {
	return ix.store.Healthy(ctx)
}

// Close releases the store.
func (ix *Index) Close() error {
	return ix.store.Close()
}

func dedupeLast(docs []model.CourseDocument) []model.CourseDocument {
	last := make(map[string]int, len(docs))
	for i, d := range docs {
		last[d.ID] = i
	}
	if len(last) == len(docs) {
		return docs
	}
	out := make([]model.CourseDocument, 0, len(last))
	for i, d := range docs {
		if last[d.ID] == i {
			out = append(out, d)
		}
	}
	return out
}
