package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
)

// pointNamespace derives stable Qdrant point UUIDs from document IDs, since
// Qdrant only accepts integers or UUIDs as point IDs.
var pointNamespace = uuid.MustParse("9b2f6c1e-4d1a-5c7e-8f3b-2a6d0e9c4b17")

// indexedFields get keyword payload indexes so metadata filters stay fast.
var indexedFields = []string{"course_id", "course_type", "category", "status"}

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
}

// QdrantStore implements VectorStore over Qdrant's gRPC API.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // *error
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// The REST port 6333 is mapped to the gRPC port 6334.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}
	return host, port, useTLS, nil
}

// NewQdrantStore connects to Qdrant. The gRPC connection is lazy, so an
// unreachable server surfaces on the first RPC rather than here.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("search: qdrant collection is required")
	}
	if cfg.Dims == 0 {
		return nil, fmt.Errorf("search: qdrant vector size is required")
	}
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logger,
	}, nil
}

// Collection returns the collection name.
func (q *QdrantStore) Collection() string { return q.collection }

// EnsureCollection creates the collection with the cosine metric if it does
// not exist, then makes sure the metadata payload indexes are present.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}

	if !exists {
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("search: create collection %q: %w", q.collection, err)
		}
		q.logger.Info("qdrant: created collection", "collection", q.collection, "dims", q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range indexedFields {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
			Wait:           qdrant.PtrOf(true),
		}); err != nil {
			return fmt.Errorf("search: ensure index on %q: %w", field, err)
		}
	}
	return nil
}

func pointID(docID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(docID)).String())
}

// Upsert writes points and waits for them to be searchable.
func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]any, len(p.Metadata)+2)
		for k, v := range p.Metadata {
			payload[k] = v
		}
		payload[payloadDocID] = p.ID
		payload[payloadText] = p.Text

		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("search: qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

// Query runs a dense nearest-neighbor search with optional metadata filter.
func (q *QdrantStore) Query(ctx context.Context, query Query) ([]Hit, error) {
	if query.TopK <= 0 {
		return []Hit{}, nil
	}

	limit := uint64(query.TopK) //nolint:gosec // bounded by Index
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query.Vector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(query.Filter) > 0 {
		keys := make([]string, 0, len(query.Filter))
		for k := range query.Filter {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		must := make([]*qdrant.Condition, 0, len(keys))
		for _, k := range keys {
			must = append(must, qdrant.NewMatch(k, query.Filter[k]))
		}
		req.Filter = &qdrant.Filter{Must: must}
	}

	scored, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: qdrant query: %w", err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, sp := range scored {
		h := Hit{Score: sp.Score, Metadata: map[string]string{}}
		for k, v := range sp.Payload {
			switch k {
			case payloadDocID:
				h.ID = v.GetStringValue()
			case payloadText:
				h.Text = v.GetStringValue()
			default:
				h.Metadata[k] = v.GetStringValue()
			}
		}
		if h.ID == "" {
			q.logger.Warn("qdrant: point without doc_id payload", "point", sp.Id.GetUuid())
			continue
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantStore) Count(ctx context.Context) (int64, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("search: qdrant count: %w", err)
	}
	return int64(n), nil //nolint:gosec // point counts fit in int64
}

// Reset deletes the collection and recreates it empty.
func (q *QdrantStore) Reset(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("search: delete collection %q: %w", q.collection, err)
		}
		q.logger.Warn("qdrant: collection deleted", "collection", q.collection)
	}
	return q.EnsureCollection(ctx)
}

// Healthy returns nil if Qdrant is reachable. Results are cached for five
// seconds and concurrent checks share one RPC.
func (q *QdrantStore) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// Detached from ctx: singleflight hands the first caller's result to
	// every waiter, so one cancellation must not poison the rest.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if _, err := q.client.HealthCheck(checkCtx); err != nil {
			q.storeHealthErr(fmt.Errorf("search: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

func (q *QdrantStore) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantStore) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}
