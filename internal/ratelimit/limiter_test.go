package ratelimit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(opts Options) (*Limiter, *int) {
	l := New(opts, slog.Default())
	sleeps := 0
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}
	return l, &sleeps
}

func TestAcquireWithinBurst(t *testing.T) {
	l, sleeps := newTestLimiter(Options{Default: ClassLimit{PerSecond: 1, Burst: 3}})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "llm"))
	}
	assert.Equal(t, 0, *sleeps)
}

func TestAcquireExhaustsRetryBudget(t *testing.T) {
	l, sleeps := newTestLimiter(Options{
		// Refill is effectively zero so every retry still finds an empty bucket.
		Default:    ClassLimit{PerSecond: 0.000001, Burst: 1},
		MaxRetries: 3,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "scrape:freebuf"))

	err := l.Acquire(ctx, "scrape:freebuf")
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 3, *sleeps)
}

func TestAcquireIsolatesClasses(t *testing.T) {
	l, _ := newTestLimiter(Options{
		Default:    ClassLimit{PerSecond: 0.000001, Burst: 1},
		MaxRetries: 1,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "scrape:a"))
	require.ErrorIs(t, l.Acquire(ctx, "scrape:a"), ErrRateLimitExceeded)

	// A drained class must not starve a different one.
	require.NoError(t, l.Acquire(ctx, "scrape:b"))
}

func TestAcquireHonorsClassOverride(t *testing.T) {
	l, _ := newTestLimiter(Options{
		Default:    ClassLimit{PerSecond: 0.000001, Burst: 1},
		Classes:    map[string]ClassLimit{"llm": {PerSecond: 100, Burst: 10}},
		MaxRetries: 1,
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx, "llm"))
	}
}

func TestAcquireRespectsCancelledContext(t *testing.T) {
	l := New(Options{Default: ClassLimit{PerSecond: 1, Burst: 1}}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx, "llm"), context.Canceled)
}

func TestJitterStaysBounded(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := jitter(base)
		assert.GreaterOrEqual(t, d, base/2)
		assert.Less(t, d, base*3/2)
	}
}
