package embedding

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// Cache stores vectors by opaque key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// CachedProvider serves repeated texts from a Cache. Cache failures are
// logged and fall through to the wrapped provider.
type CachedProvider struct {
	inner     Provider
	cache     Cache
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewCachedProvider wraps inner. namespace should identify the model so
// that switching models never serves stale vectors.
func NewCachedProvider(inner Provider, cache Cache, namespace string, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{inner: inner, cache: cache, namespace: namespace, ttl: ttl, logger: logger}
}

// Dimensions returns the wrapped provider's vector size.
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

// Embed returns the cached vector for text or computes and stores it.
func (p *CachedProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds only the texts that miss the cache, in one inner call.
func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([]pgvector.Vector, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = p.key(text)
		cached, ok, err := p.cache.Get(ctx, keys[i])
		if err != nil {
			p.logger.Warn("embedding: cache get failed", "error", err)
		}
		if ok && len(cached) == p.inner.Dimensions() {
			vecs[i] = pgvector.NewVector(cached)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vecs, nil
	}

	fresh, err := p.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		vecs[idx] = fresh[j]
		if err := p.cache.Set(ctx, keys[idx], fresh[j].Slice(), p.ttl); err != nil {
			p.logger.Warn("embedding: cache set failed", "error", err)
		}
	}
	return vecs, nil
}

func (p *CachedProvider) key(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return "michi:emb:" + p.namespace + ":" + hex.EncodeToString(sum[:])
}

// RedisCache stores vectors as little-endian float32 bytes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to url (redis://host:port/db) and pings it.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("embedding: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("embedding: ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get fetches a vector.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embedding: redis get: %w", err)
	}
	vec, err := decodeVector(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores a vector with ttl; zero means no expiry.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, encodeVector(vec), ttl).Err(); err != nil {
		return fmt.Errorf("embedding: redis set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding: cached vector has %d bytes", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
