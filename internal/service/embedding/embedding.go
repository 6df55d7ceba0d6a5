// Package embedding turns course text into vectors for the retrieval index.
//
// Provider is the contract; OpenAIProvider, OllamaProvider and NoopProvider
// implement it, and CachedProvider wraps any of them with a shared cache.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// ErrDimensionMismatch is returned when a model produces vectors of a size
// other than the configured one.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

func checkDims(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// NoopProvider returns zero vectors. Used when no embedding backend is
// reachable; the memory store then ranks by keyword overlap instead.
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider that returns zero vectors.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the embedding vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// Embed returns a zero vector.
func (p *NoopProvider) Embed(_ context.Context, _ string) (pgvector.Vector, error) {
	return pgvector.NewVector(make([]float32, p.dims)), nil
}

// EmbedBatch returns zero vectors.
func (p *NoopProvider) EmbedBatch(_ context.Context, texts []string) ([]pgvector.Vector, error) {
	vecs := make([]pgvector.Vector, len(texts))
	for i := range vecs {
		vecs[i] = pgvector.NewVector(make([]float32, p.dims))
	}
	return vecs, nil
}

// IsNoop reports whether p produces only zero vectors.
func IsNoop(p Provider) bool {
	switch v := p.(type) {
	case *NoopProvider:
		return true
	case *CachedProvider:
		return IsNoop(v.inner)
	}
	return false
}
