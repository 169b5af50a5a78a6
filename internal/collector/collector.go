package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/domain"
	"sentinel/internal/ratelimit"
	"sentinel/internal/scanner"
)

// defaultWorkers bounds the fan-out. Source sites impose connection limits,
// so the pool stays small instead of spawning one goroutine per site.
const defaultWorkers = 4

// Stats reports per-run source outcomes for observability.
type Stats struct {
	Succeeded int
	Failed    int
}

// Collector fans out over configured sites through their registered scanner
// strategies and aggregates the raw-article stream. One-shot per invocation.
type Collector struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	limiter  *ratelimit.Limiter
	workers  int
	logger   *slog.Logger
}

// New wires the scanner registry with config-defined sites.
func New(reg *scanner.Registry, sites []config.SiteConfig, limiter *ratelimit.Limiter, workers int, logger *slog.Logger) *Collector {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		registry: reg,
		sites:    sites,
		limiter:  limiter,
		workers:  workers,
		logger:   logger,
	}
}

// Collect fetches every configured site concurrently, bounded by the worker
// pool. A single site's failure is logged and excluded; it never aborts
// collection from the other sites.
func (c *Collector) Collect(ctx context.Context, since time.Time) ([]domain.RawArticle, Stats) {
	if c.registry == nil || len(c.sites) == 0 {
		return nil, Stats{}
	}

	c.logger.Debug("collect start", "sites", len(c.sites), "since", since.Format("2006-01-02"))

	perSite := make([][]domain.RawArticle, len(c.sites))
	errs := make([]error, len(c.sites))

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, site := range c.sites {
		wg.Add(1)
		go func(idx int, site config.SiteConfig) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}

			perSite[idx], errs[idx] = c.fetchSite(ctx, site, since)
		}(i, site)
	}
	wg.Wait()

	var aggregated []domain.RawArticle
	stats := Stats{}
	for i, site := range c.sites {
		if errs[i] != nil {
			stats.Failed++
			c.logger.Warn("source fetch failed", "site", site.Name, "error", errs[i])
			continue
		}
		stats.Succeeded++
		c.logger.Debug("site produced articles", "site", site.Name, "count", len(perSite[i]))
		aggregated = append(aggregated, perSite[i]...)
	}

	c.logger.Info("collect done",
		"total_articles", len(aggregated),
		"sources_ok", stats.Succeeded,
		"sources_failed", stats.Failed)
	return aggregated, stats
}

func (c *Collector) fetchSite(ctx context.Context, site config.SiteConfig, since time.Time) ([]domain.RawArticle, error) {
	strategy, err := c.registry.Resolve(site.Scanner)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Name, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, "scrape:"+site.Name); err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}
	}

	req := scanner.Request{
		Since:    since,
		SiteName: site.Name,
		Language: site.Language,
		URLs:     site.URLs,
		Options:  site.Options,
	}

	results, err := strategy.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch site %s: %w", site.Name, err)
	}

	for i := range results {
		if results[i].Source == "" {
			results[i].Source = site.Name
		}
		if results[i].Language == "" {
			results[i].Language = site.Language
		}
	}
	return results, nil
}
