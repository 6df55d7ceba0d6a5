package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// TokenBucket implements Limiter with an in-memory bucket per key.
//
// Callers that find the bucket empty reserve a future token: the balance may
// go negative, and the caller sleeps until its reservation matures. This keeps
// waiters in arrival order without a queue.
type TokenBucket struct {
	rate  float64 // tokens added per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewTokenBucket creates a limiter refilling rate tokens per second up to
// burst. Call Close to stop the eviction goroutine.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	m := &TokenBucket{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Wait blocks until the reservation for key matures.
func (m *TokenBucket) Wait(ctx context.Context, key string) error {
	delay := m.reserve(key)
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		m.cancel(key)
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// reserve takes one token and reports how long the caller must wait for it.
func (m *TokenBucket) reserve(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, lastAccess: now}
		m.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastAccess).Seconds() * m.rate
	if b.tokens > m.burst {
		b.tokens = m.burst
	}
	b.lastAccess = now
	b.tokens--

	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / m.rate * float64(time.Second))
}

// cancel returns a token whose reservation was abandoned.
func (m *TokenBucket) cancel(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[key]; ok {
		b.tokens++
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *TokenBucket) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

func (m *TokenBucket) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *TokenBucket) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) && b.tokens >= 0 {
			delete(m.buckets, key)
		}
	}
}
