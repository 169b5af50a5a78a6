package storage

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sentinel/internal/domain"
	"sentinel/internal/ports"
)

// MemoryStore is an in-process RecordStore with the same dedup semantics as
// the Postgres store. Used for local runs without a database and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	cves   map[string]*domain.Vulnerability
	news   map[string]*domain.NewsItem
	logger *slog.Logger
}

var _ ports.RecordStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		cves:   map[string]*domain.Vulnerability{},
		news:   map[string]*domain.NewsItem{},
		logger: logger,
	}
}

// Upsert stores the record unless its URL is already held by the same
// variant; duplicates only backfill originally-empty content fields
// (translated title, summary).
func (m *MemoryStore) Upsert(ctx context.Context, record domain.ClassifiedRecord, sessionID string) (ports.UpsertOutcome, error) {
	if sessionID == "" {
		sessionID = domain.SessionUnknown
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case record.Kind == domain.KindVulnerability && record.Vuln != nil:
		v := *record.Vuln
		if existing, ok := m.cves[v.URL]; ok {
			if existing.Severity != v.Severity ||
				(existing.Summary != "" && existing.Summary != v.Summary) {
				m.logger.Info("duplicate url with drifted classification, keeping first write",
					"url", v.URL,
					"stored_severity", string(existing.Severity),
					"new_severity", string(v.Severity))
			}
			if existing.TitleTranslated == "" {
				existing.TitleTranslated = v.TitleTranslated
			}
			if existing.Summary == "" {
				existing.Summary = v.Summary
			}
			return ports.OutcomeSkippedDuplicate, nil
		}
		v.SessionID = sessionID
		v.CreatedAt = time.Now().UTC()
		m.cves[v.URL] = &v
		return ports.OutcomeStored, nil

	case record.Kind == domain.KindNews && record.News != nil:
		n := *record.News
		if existing, ok := m.news[n.URL]; ok {
			if existing.Summary != "" && existing.Summary != n.Summary {
				m.logger.Info("duplicate url with drifted classification, keeping first write",
					"url", n.URL)
			}
			if existing.TitleTranslated == "" {
				existing.TitleTranslated = n.TitleTranslated
			}
			if existing.Summary == "" {
				existing.Summary = n.Summary
			}
			return ports.OutcomeSkippedDuplicate, nil
		}
		n.SessionID = sessionID
		n.CreatedAt = time.Now().UTC()
		m.news[n.URL] = &n
		return ports.OutcomeStored, nil
	}

	return "", errors.New("empty record")
}

// RecentSince returns all records created at or after the given time.
func (m *MemoryStore) RecentSince(ctx context.Context, since time.Time) ([]domain.ClassifiedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []domain.ClassifiedRecord
	for _, v := range m.cves {
		if !v.CreatedAt.Before(since) {
			vuln := *v
			records = append(records, domain.ClassifiedRecord{Kind: domain.KindVulnerability, Vuln: &vuln})
		}
	}
	for _, n := range m.news {
		if !n.CreatedAt.Before(since) {
			item := *n
			records = append(records, domain.ClassifiedRecord{Kind: domain.KindNews, News: &item})
		}
	}
	return records, nil
}

// BySession returns every record a run produced.
func (m *MemoryStore) BySession(ctx context.Context, sessionID string) ([]domain.ClassifiedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []domain.ClassifiedRecord
	for _, v := range m.cves {
		if v.SessionID == sessionID {
			vuln := *v
			records = append(records, domain.ClassifiedRecord{Kind: domain.KindVulnerability, Vuln: &vuln})
		}
	}
	for _, n := range m.news {
		if n.SessionID == sessionID {
			item := *n
			records = append(records, domain.ClassifiedRecord{Kind: domain.KindNews, News: &item})
		}
	}
	return records, nil
}

// Query filters and ranks records the way the Postgres store does: CVEs by a
// severity/intrigue composite, news by intrigue.
func (m *MemoryStore) Query(ctx context.Context, filter ports.QueryFilter) ([]domain.ClassifiedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > domain.MaxResultsCap {
		limit = domain.MaxResultsCap
	}

	contentType := filter.ContentType
	if contentType == "" {
		contentType = domain.ContentBoth
	}

	var records []domain.ClassifiedRecord

	if contentType == domain.ContentCVE || contentType == domain.ContentBoth {
		var cves []domain.ClassifiedRecord
		for _, v := range m.cves {
			if !matchesSeverity(filter.Severities, v.Severity) {
				continue
			}
			if !filter.Since.IsZero() && v.PublishedAt.Before(filter.Since) {
				continue
			}
			vuln := *v
			cves = append(cves, domain.ClassifiedRecord{Kind: domain.KindVulnerability, Vuln: &vuln})
		}
		sort.SliceStable(cves, func(i, j int) bool {
			a, b := cves[i].Vuln, cves[j].Vuln
			ra := a.CVSSScore*0.6 + a.Intrigue*0.4
			rb := b.CVSSScore*0.6 + b.Intrigue*0.4
			if ra != rb {
				return ra > rb
			}
			return a.PublishedAt.After(b.PublishedAt)
		})
		records = append(records, cves...)
	}

	if contentType == domain.ContentNews || contentType == domain.ContentBoth {
		var news []domain.ClassifiedRecord
		for _, n := range m.news {
			if !filter.Since.IsZero() && n.PublishedAt.Before(filter.Since) {
				continue
			}
			item := *n
			news = append(news, domain.ClassifiedRecord{Kind: domain.KindNews, News: &item})
		}
		sort.SliceStable(news, func(i, j int) bool {
			if news[i].News.Intrigue != news[j].News.Intrigue {
				return news[i].News.Intrigue > news[j].News.Intrigue
			}
			return news[i].News.PublishedAt.After(news[j].News.PublishedAt)
		})
		records = append(records, news...)
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func matchesSeverity(filter []domain.Severity, s domain.Severity) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		if want == s {
			return true
		}
	}
	return false
}
