package search

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps points in process memory and scores them by brute
// force. When a query vector is all zeros (the noop embedder), hits are
// ranked by keyword overlap instead, and documents sharing no term with the
// query are left out.
type MemoryStore struct {
	collection string

	mu     sync.RWMutex
	points map[string]Point
	order  []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(collection string) *MemoryStore {
	return &MemoryStore{collection: collection, points: map[string]Point{}}
}

func (m *MemoryStore) EnsureCollection(context.Context) error { return nil }

func (m *MemoryStore) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if _, ok := m.points[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		p.Metadata = maps.Clone(p.Metadata)
		p.Vector = append([]float32(nil), p.Vector...)
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Hit, error) {
	if q.TopK <= 0 {
		return []Hit{}, nil
	}
	keyword := len(q.Vector) == 0 || isZero(q.Vector)

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.points))
	for _, id := range m.order {
		p := m.points[id]
		if !matches(p.Metadata, q.Filter) {
			continue
		}
		var score float32
		if keyword {
			score = keywordScore(q.Text, p.Text)
			if score == 0 {
				continue
			}
		} else {
			score = cosine(q.Vector, p.Vector)
		}
		hits = append(hits, Hit{ID: p.ID, Text: p.Text, Metadata: maps.Clone(p.Metadata), Score: score})
	}
	m.mu.RUnlock()

	sortHits(hits)
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.points)), nil
}

func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = map[string]Point{}
	m.order = nil
	return nil
}

func (m *MemoryStore) Healthy(context.Context) error { return nil }

func (m *MemoryStore) Collection() string { return m.collection }

func (m *MemoryStore) Close() error { return nil }
