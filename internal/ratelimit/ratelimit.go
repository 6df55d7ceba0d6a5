// Package ratelimit throttles outbound calls to the learning platform.
//
// A Limiter blocks the caller until a request identified by key may proceed.
// TokenBucket keeps one bucket per key in memory; NoopLimiter disables
// throttling.
package ratelimit

import "context"

// Limiter paces requests identified by an opaque key (for example a host name).
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Wait blocks until a token is available for key or ctx is done.
	Wait(ctx context.Context, key string) error

	// Close releases background resources.
	Close() error
}

// NoopLimiter never blocks. Used when throttling is disabled.
type NoopLimiter struct{}

// Wait returns immediately.
func (NoopLimiter) Wait(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// New returns a TokenBucket for a positive rate and a NoopLimiter otherwise.
func New(rate float64, burst int) Limiter {
	if rate <= 0 {
		return NoopLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return NewTokenBucket(rate, burst)
}
