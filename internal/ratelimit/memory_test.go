package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFrozenBucket(t *testing.T, rate float64, burst int) (*TokenBucket, *time.Time) {
	t.Helper()
	m := NewTokenBucket(rate, burst)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestTokenBucketBurstIsFree(t *testing.T) {
	m, _ := newFrozenBucket(t, 10, 3)
	for i := 0; i < 3; i++ {
		assert.Zero(t, m.reserve("host"), "request %d within burst", i)
	}
}

func TestTokenBucketReservesFutureTokens(t *testing.T) {
	m, _ := newFrozenBucket(t, 10, 1)
	assert.Zero(t, m.reserve("host"))
	assert.Equal(t, 100*time.Millisecond, m.reserve("host"))
	assert.Equal(t, 200*time.Millisecond, m.reserve("host"))
}

func TestTokenBucketRefills(t *testing.T) {
	m, now := newFrozenBucket(t, 10, 1)
	assert.Zero(t, m.reserve("host"))
	*now = now.Add(100 * time.Millisecond)
	assert.Zero(t, m.reserve("host"))
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	m, _ := newFrozenBucket(t, 1, 1)
	assert.Zero(t, m.reserve("a"))
	assert.Zero(t, m.reserve("b"))
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	m := NewTokenBucket(0.001, 1)
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Wait(context.Background(), "host"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Wait(ctx, "host")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewDisabledIsNoop(t *testing.T) {
	l := New(0, 5)
	_, ok := l.(NoopLimiter)
	assert.True(t, ok)
	assert.NoError(t, l.Wait(context.Background(), "x"))
	assert.NoError(t, l.Close())
}

func TestCloseIdempotent(t *testing.T) {
	m := NewTokenBucket(1, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
