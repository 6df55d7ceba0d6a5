// Package search implements the course retrieval index.
//
// VectorStore is the persistence contract with three implementations:
// QdrantStore (gRPC), PgvectorStore (Postgres) and MemoryStore (in process).
// Index layers embedding, batching and result shaping on top of a store.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Payload keys reserved by the stores; everything else is document metadata.
const (
	payloadDocID = "doc_id"
	payloadText  = "text"
)

// Point is one document ready for upsert.
type Point struct {
	ID       string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// Filter restricts a query to documents whose metadata equals every entry.
type Filter map[string]string

// Query describes a nearest-neighbor lookup. Text is carried alongside the
// vector so stores without a usable embedding can fall back to keywords.
type Query struct {
	Text   string
	Vector []float32
	TopK   int
	Filter Filter
}

// Hit is a raw store result. Score is cosine similarity in [-1, 1].
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float32
}

// VectorStore persists points in a named collection with the cosine metric.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// Upsert inserts or overwrites points by ID.
	Upsert(ctx context.Context, points []Point) error

	// Query returns up to q.TopK hits, highest score first.
	Query(ctx context.Context, q Query) ([]Hit, error)

	// Count reports the number of stored points.
	Count(ctx context.Context) (int64, error)

	// Reset drops and recreates the collection.
	Reset(ctx context.Context) error

	// Healthy returns nil if the store is reachable.
	Healthy(ctx context.Context) error

	// Collection names the underlying collection or table.
	Collection() string

	Close() error
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// keywordScore is the share of query terms present in text. CJK text has no
// word boundaries, so each Han rune counts as its own term.
func keywordScore(query, text string) float32 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float32(matched) / float32(len(terms))
}

func tokenize(s string) []string {
	seen := map[string]bool{}
	var terms []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	var word strings.Builder
	flush := func() {
		add(word.String())
		word.Reset()
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			add(string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return terms
}

func matches(meta map[string]string, f Filter) bool {
	for k, v := range f {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}
