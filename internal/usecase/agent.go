package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/classify"
	"sentinel/internal/collector"
	"sentinel/internal/domain"
	"sentinel/internal/ports"
	"sentinel/internal/score"
)

const defaultClassifyWorkers = 3

// Agent executes one full pipeline run: scrape the configured sources,
// classify the raw articles, rank what survives filtering, and persist the
// result under a fresh session id. Failures of individual articles or
// sources degrade the run instead of aborting it.
type Agent struct {
	collector  *collector.Collector
	classifier ports.Classifier
	store      ports.RecordStore
	workers    int
	logger     *slog.Logger

	now func() time.Time
}

// NewAgent wires the pipeline stages together.
func NewAgent(col *collector.Collector, classifier ports.Classifier, store ports.RecordStore, workers int, logger *slog.Logger) *Agent {
	if workers <= 0 {
		workers = defaultClassifyWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		collector:  col,
		classifier: classifier,
		store:      store,
		workers:    workers,
		logger:     logger.With("component", "agent"),
		now:        time.Now,
	}
}

// Run executes the pipeline once. It always returns a report; the returned
// records are the ranked set persisted for this session, ordered by
// intrigue and recency.
func (a *Agent) Run(ctx context.Context, mode domain.Mode, params domain.RunParams) (domain.RunReport, []domain.ClassifiedRecord) {
	params = params.Normalize()
	session := domain.RunSession{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: a.now().UTC(),
		Params:    params,
	}

	logger := a.logger.With("session_id", session.ID, "mode", mode)
	logger.Info("run started",
		"content_type", params.ContentType,
		"lookback_days", params.LookbackDays,
		"max_results", params.MaxResults)

	report := domain.RunReport{SessionID: session.ID, Mode: mode}
	cutoff := params.Cutoff(session.StartedAt)

	articles, stats := a.collector.Collect(ctx, cutoff)
	report.SourcesOK = stats.Succeeded
	report.SourcesFailed = stats.Failed

	if stats.Succeeded == 0 && stats.Failed > 0 {
		report.Err = "all sources failed"
		report.Elapsed = a.now().Sub(session.StartedAt)
		logger.Error("run aborted", "error", report.Err)
		return report, nil
	}

	records := a.classifyAll(ctx, logger, articles)
	records = a.rank(records, params, cutoff)

	stored := a.persist(ctx, logger, session, records)

	for _, rec := range records {
		if rec.Kind == domain.KindVulnerability {
			report.CVEsFound++
		} else {
			report.NewsFound++
		}
	}
	report.Success = true
	report.Elapsed = a.now().Sub(session.StartedAt)

	logger.Info("run finished",
		"cves", report.CVEsFound,
		"news", report.NewsFound,
		"stored", stored,
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report, records
}

// classifyAll pushes articles through the classifier with a bounded worker
// pool. Order of the input is preserved in the output; irrelevant and failed
// articles are dropped.
func (a *Agent) classifyAll(ctx context.Context, logger *slog.Logger, articles []domain.RawArticle) []domain.ClassifiedRecord {
	if len(articles) == 0 {
		return nil
	}

	results := make([]*domain.ClassifiedRecord, len(articles))

	sem := make(chan struct{}, a.workers)
	var wg sync.WaitGroup
	for i := range articles {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			rec, err := a.classifier.Classify(ctx, articles[idx])
			if err != nil {
				if errors.Is(err, classify.ErrNotRelevant) {
					logger.Debug("article not relevant", "url", articles[idx].URL)
				} else {
					logger.Warn("classification failed",
						"url", articles[idx].URL, "error", err)
				}
				return
			}
			results[idx] = &rec
		}(i)
	}
	wg.Wait()

	var records []domain.ClassifiedRecord
	for _, rec := range results {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// rank normalizes scores, applies the run filters, and orders the survivors
// by intrigue then publication recency. Ties keep classification order.
func (a *Agent) rank(records []domain.ClassifiedRecord, params domain.RunParams, cutoff time.Time) []domain.ClassifiedRecord {
	var kept []domain.ClassifiedRecord
	for i := range records {
		rec := records[i]
		score.Apply(&rec)

		if params.ContentType == domain.ContentCVE && rec.Kind != domain.KindVulnerability {
			continue
		}
		if params.ContentType == domain.ContentNews && rec.Kind != domain.KindNews {
			continue
		}
		if rec.Kind == domain.KindVulnerability && rec.Vuln != nil &&
			!params.WantsSeverity(rec.Vuln.Severity) {
			continue
		}
		if published := rec.PublishedAt(); !published.IsZero() && published.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Intrigue() != kept[j].Intrigue() {
			return kept[i].Intrigue() > kept[j].Intrigue()
		}
		return kept[i].PublishedAt().After(kept[j].PublishedAt())
	})

	if len(kept) > params.MaxResults {
		kept = kept[:params.MaxResults]
	}
	return kept
}

// persist stamps each ranked record with the session identity and upserts it.
// Duplicate URLs are expected across runs and only logged.
func (a *Agent) persist(ctx context.Context, logger *slog.Logger, session domain.RunSession, records []domain.ClassifiedRecord) int {
	stored := 0
	for i := range records {
		records[i].Stamp(session.ID, a.now().UTC())

		outcome, err := a.store.Upsert(ctx, records[i], session.ID)
		if err != nil {
			logger.Warn("persist failed", "url", records[i].URL(), "error", err)
			continue
		}
		if outcome == ports.OutcomeStored {
			stored++
		} else {
			logger.Debug("duplicate url skipped", "url", records[i].URL())
		}
	}
	return stored
}
