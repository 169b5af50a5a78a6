package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/ports"
)

// Ticker fires a job at a fixed interval. The first tick runs immediately on
// Start so a freshly deployed scanner produces results without waiting a full
// interval.
type Ticker struct {
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.Trigger = (*Ticker)(nil)

// NewTicker builds an interval trigger.
func NewTicker(interval time.Duration, logger *slog.Logger) *Ticker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start launches the tick loop. It returns an error if the trigger is
// already running or the interval is not positive.
func (t *Ticker) Start(ctx context.Context, job func(time.Time)) error {
	if t.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	t.logger.Info("scheduler started", "interval", t.interval)

	go t.loop(runCtx, job)
	return nil
}

func (t *Ticker) loop(ctx context.Context, job func(time.Time)) {
	defer close(t.done)

	job(time.Now())

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			job(now)
		}
	}
}

// Stop cancels the loop and waits for the current tick to return, or until
// the passed context expires.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		t.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
