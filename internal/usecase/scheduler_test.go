package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/domain"
)

type manualTrigger struct {
	job func(time.Time)
}

func (t *manualTrigger) Start(ctx context.Context, job func(time.Time)) error {
	t.job = job
	return nil
}

func (t *manualTrigger) Stop(ctx context.Context) error { return nil }

type recordingNotifier struct {
	mu      sync.Mutex
	reports []domain.RunReport
	samples [][]domain.ClassifiedRecord
}

func (n *recordingNotifier) Notify(ctx context.Context, report domain.RunReport, sample []domain.ClassifiedRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
	n.samples = append(n.samples, sample)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reports)
}

func newSchedulerFixture(t *testing.T, mode domain.Mode, notifyOnTesting bool, cls *stubClassifier) (*Scheduler, *manualTrigger, *recordingNotifier) {
	t.Helper()

	now := time.Now().UTC()
	col := newTestCollector(&stubScanner{name: "a", articles: []domain.RawArticle{
		rawArticle("https://example.com/1", "x", now),
	}})
	if cls == nil {
		cls = &stubClassifier{fn: func(a domain.RawArticle) (domain.ClassifiedRecord, error) {
			return newsRecord(a.URL, 5, now), nil
		}}
	}
	agent := NewAgent(col, cls, &recordingStore{}, 2, slog.Default())

	trigger := &manualTrigger{}
	notifier := &recordingNotifier{}
	sched := NewScheduler(agent, trigger, notifier, SchedulerOptions{
		Mode:            mode,
		Params:          domain.RunParams{},
		NotifyOnTesting: notifyOnTesting,
	}, slog.Default())
	return sched, trigger, notifier
}

func TestSchedulerProductionTickNotifies(t *testing.T) {
	sched, trigger, notifier := newSchedulerFixture(t, domain.ModeProduction, false, nil)

	require.NoError(t, sched.Start(context.Background()))
	trigger.job(time.Now())

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, domain.ModeProduction, notifier.reports[0].Mode)
	assert.True(t, notifier.reports[0].Success)
	assert.Len(t, notifier.samples[0], 1)
}

func TestSchedulerTestingTickSuppressed(t *testing.T) {
	sched, trigger, notifier := newSchedulerFixture(t, domain.ModeTesting, false, nil)

	require.NoError(t, sched.Start(context.Background()))
	trigger.job(time.Now())

	assert.Equal(t, 0, notifier.count())
}

func TestSchedulerTestingTickNotifiesWhenEnabled(t *testing.T) {
	sched, trigger, notifier := newSchedulerFixture(t, domain.ModeTesting, true, nil)

	require.NoError(t, sched.Start(context.Background()))
	trigger.job(time.Now())

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, domain.ModeTesting, notifier.reports[0].Mode)
}

func TestSchedulerSkipsOverlappingTick(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	cls := &stubClassifier{fn: func(a domain.RawArticle) (domain.ClassifiedRecord, error) {
		once.Do(func() { close(started) })
		<-block
		return newsRecord(a.URL, 5, time.Now().UTC()), nil
	}}
	sched, trigger, notifier := newSchedulerFixture(t, domain.ModeProduction, false, cls)

	require.NoError(t, sched.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		trigger.job(time.Now())
		close(done)
	}()
	<-started

	// second tick arrives mid-run and must be dropped
	trigger.job(time.Now())

	close(block)
	<-done

	assert.Equal(t, 1, notifier.count())
}

func TestSchedulerManualRunRefusedWhileTickActive(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	cls := &stubClassifier{fn: func(a domain.RawArticle) (domain.ClassifiedRecord, error) {
		once.Do(func() { close(started) })
		<-block
		return newsRecord(a.URL, 5, time.Now().UTC()), nil
	}}
	sched, trigger, notifier := newSchedulerFixture(t, domain.ModeProduction, false, cls)

	require.NoError(t, sched.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		trigger.job(time.Now())
		close(done)
	}()
	<-started

	// A manual run must not overlap the in-flight scheduled run.
	report := sched.RunOnce(context.Background())
	assert.False(t, report.Success)
	assert.Equal(t, "run already in progress", report.Err)
	assert.Empty(t, report.SessionID)

	close(block)
	<-done

	// Only the scheduled run reported.
	assert.Equal(t, 1, notifier.count())
}

func TestSchedulerRunOnceAlwaysNotifies(t *testing.T) {
	sched, _, notifier := newSchedulerFixture(t, domain.ModeTesting, false, nil)

	report := sched.RunOnce(context.Background())

	assert.True(t, report.Success)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, domain.ModeManual, notifier.reports[0].Mode)
}
