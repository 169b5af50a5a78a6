package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned once the backoff budget for a resource
// class is exhausted. Call sites treat it as the enclosing fetch or classify
// failure rather than aborting the run.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ClassLimit configures the token bucket of one resource class.
type ClassLimit struct {
	PerSecond float64
	Burst     int
}

// Options configures limiter behavior shared across classes.
type Options struct {
	Default     ClassLimit
	Classes     map[string]ClassLimit
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Limiter bounds outbound call rate per resource class ("llm", "translate",
// "scrape:<source>"). One process-wide instance is shared by every component
// that talks to a throttled collaborator.
type Limiter struct {
	opts    Options
	logger  *slog.Logger
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a limiter; zero option fields get conservative defaults.
func New(opts Options, logger *slog.Logger) *Limiter {
	if opts.Default.PerSecond <= 0 {
		opts.Default.PerSecond = 2
	}
	if opts.Default.Burst <= 0 {
		opts.Default.Burst = 1
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		opts:    opts,
		logger:  logger,
		buckets: map[string]*rate.Limiter{},
		sleep:   sleepCtx,
	}
}

// Acquire blocks until the class admits one more call, retrying with
// exponential backoff and jitter while the bucket is empty. After the retry
// budget it returns ErrRateLimitExceeded.
func (l *Limiter) Acquire(ctx context.Context, class string) error {
	bucket := l.bucket(class)

	backoff := l.opts.BaseBackoff
	for attempt := 0; attempt <= l.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bucket.Allow() {
			return nil
		}
		if attempt == l.opts.MaxRetries {
			break
		}

		wait := jitter(backoff)
		l.logger.Debug("throttled, backing off",
			"class", class, "attempt", attempt+1, "wait", wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}

		backoff *= 2
		if backoff > l.opts.MaxBackoff {
			backoff = l.opts.MaxBackoff
		}
	}

	l.logger.Warn("rate limit exceeded", "class", class, "retries", l.opts.MaxRetries)
	return fmt.Errorf("class %s: %w", class, ErrRateLimitExceeded)
}

func (l *Limiter) bucket(class string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[class]; ok {
		return b
	}

	limit := l.opts.Default
	if override, ok := l.opts.Classes[class]; ok {
		if override.PerSecond > 0 {
			limit.PerSecond = override.PerSecond
		}
		if override.Burst > 0 {
			limit.Burst = override.Burst
		}
	}

	b := rate.NewLimiter(rate.Limit(limit.PerSecond), limit.Burst)
	l.buckets[class] = b
	return b
}

// jitter spreads waiters over [0.5d, 1.5d) to avoid thundering-herd re-entry.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
