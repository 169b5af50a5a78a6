package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"sentinel/internal/domain"
	"sentinel/internal/ports"
)

// Scheduler drives the agent on a trigger's cadence. At most one run is in
// flight at a time: a tick that arrives while a run is active is skipped,
// not queued.
type Scheduler struct {
	agent    *Agent
	trigger  ports.Trigger
	notifier ports.Notifier

	mode            domain.Mode
	params          domain.RunParams
	notifyOnTesting bool

	running atomic.Bool
	logger  *slog.Logger
}

// SchedulerOptions configure the run cadence and notification policy.
type SchedulerOptions struct {
	Mode            domain.Mode
	Params          domain.RunParams
	NotifyOnTesting bool
}

// NewScheduler wires the agent to a trigger and a notification channel.
func NewScheduler(agent *Agent, trigger ports.Trigger, notifier ports.Notifier, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		agent:           agent,
		trigger:         trigger,
		notifier:        notifier,
		mode:            opts.Mode,
		params:          opts.Params,
		notifyOnTesting: opts.NotifyOnTesting,
		logger:          logger.With("component", "scheduler"),
	}
}

// Start begins scheduled execution.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.trigger.Start(ctx, func(now time.Time) {
		s.tick(ctx, now)
	})
}

// Stop halts scheduled execution, waiting for an in-flight run.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.trigger.Stop(ctx)
}

// RunOnce executes a single run outside the schedule, for manual
// invocation. It shares the single-run guard with scheduled ticks; if a run
// is already active, the manual run is refused instead of overlapping it.
func (s *Scheduler) RunOnce(ctx context.Context) domain.RunReport {
	report, ran := s.run(ctx, domain.ModeManual)
	if !ran {
		s.logger.Warn("run already in progress, manual run refused")
		return domain.RunReport{Mode: domain.ModeManual, Err: "run already in progress"}
	}
	return report
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if _, ran := s.run(ctx, s.mode); !ran {
		s.logger.Warn("previous run still active, skipping tick", "tick", now)
	}
}

// run executes one pipeline run under the at-most-one guard. The second
// return is false when another run already holds the guard.
func (s *Scheduler) run(ctx context.Context, mode domain.Mode) (domain.RunReport, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.RunReport{}, false
	}
	defer s.running.Store(false)

	report, records := s.agent.Run(ctx, mode, s.params)
	s.maybeNotify(ctx, mode, report, records)
	return report, true
}

// maybeNotify applies the per-mode notification policy: production and
// manual runs always report, testing runs only when explicitly enabled.
func (s *Scheduler) maybeNotify(ctx context.Context, mode domain.Mode, report domain.RunReport, sample []domain.ClassifiedRecord) {
	if s.notifier == nil {
		return
	}
	if mode == domain.ModeTesting && !s.notifyOnTesting {
		s.logger.Debug("testing run, notification suppressed", "session_id", report.SessionID)
		return
	}
	if err := s.notifier.Notify(ctx, report, sample); err != nil {
		s.logger.Error("notification failed",
			"session_id", report.SessionID, "error", err)
	}
}
