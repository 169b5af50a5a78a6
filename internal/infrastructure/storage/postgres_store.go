package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"sentinel/internal/domain"
	"sentinel/internal/ports"
)

const (
	cveTable  = "cves"
	newsTable = "newsitems"
)

// psql builds placeholders in Postgres dollar format.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists classified records into Postgres. URL uniqueness is
// enforced by the tables' unique constraints, not application locking, so
// racing duplicate inserts no-op instead of duplicating.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ports.RecordStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// InitSchema creates the record tables if they do not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Upsert stores the record unless a record of the same variant already holds
// its URL. First write wins: provenance stays with the original row and only
// originally-absent content fields are backfilled.
func (s *PostgresStore) Upsert(ctx context.Context, record domain.ClassifiedRecord, sessionID string) (ports.UpsertOutcome, error) {
	if s.db == nil {
		return ports.OutcomeStored, nil
	}
	if sessionID == "" {
		sessionID = domain.SessionUnknown
	}

	if record.Kind == domain.KindVulnerability && record.Vuln != nil {
		return s.upsertVulnerability(ctx, *record.Vuln, sessionID)
	}
	if record.News != nil {
		return s.upsertNews(ctx, *record.News, sessionID)
	}
	return "", errors.New("empty record")
}

func (s *PostgresStore) upsertVulnerability(ctx context.Context, v domain.Vulnerability, sessionID string) (ports.UpsertOutcome, error) {
	query, args, err := psql.Insert(cveTable).
		Columns("cve_id", "title", "title_translated", "summary", "severity",
			"cvss_score", "affected_products", "published_date",
			"original_language", "source", "url", "intrigue",
			"session_id", "created_at").
		Values(v.CVEID, v.Title, v.TitleTranslated, v.Summary, string(v.Severity),
			v.CVSSScore, pq.Array(v.AffectedProducts), v.PublishedAt,
			v.Language, v.Source, v.URL, v.Intrigue,
			sessionID, time.Now().UTC()).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build cve insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("insert cve: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("cve rows affected: %w", err)
	}
	if affected > 0 {
		return ports.OutcomeStored, nil
	}

	if err := s.backfillVulnerability(ctx, v); err != nil {
		return "", err
	}
	return ports.OutcomeSkippedDuplicate, nil
}

// backfillVulnerability fills fields the original write left empty and logs a
// content-drift event when the new classification disagrees with the stored
// one. It never overwrites populated fields.
func (s *PostgresStore) backfillVulnerability(ctx context.Context, v domain.Vulnerability) error {
	var storedSeverity, storedSummary string
	query, args, err := psql.Select("severity", "summary").
		From(cveTable).
		Where(sq.Eq{"url": v.URL}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build cve lookup: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&storedSeverity, &storedSummary); err != nil {
		return fmt.Errorf("lookup cve %s: %w", v.URL, err)
	}

	if storedSeverity != string(v.Severity) ||
		(storedSummary != "" && storedSummary != v.Summary) {
		s.logger.Info("duplicate url with drifted classification, keeping first write",
			"url", v.URL,
			"stored_severity", storedSeverity,
			"new_severity", string(v.Severity))
	}

	// COALESCE keeps existing content; only an originally-empty column takes
	// the new value.
	update, args, err := psql.Update(cveTable).
		Set("title_translated", sq.Expr("COALESCE(NULLIF(title_translated, ''), ?)", v.TitleTranslated)).
		Set("summary", sq.Expr("COALESCE(NULLIF(summary, ''), ?)", v.Summary)).
		Where(sq.Eq{"url": v.URL}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build cve backfill: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, update, args...); err != nil {
		return fmt.Errorf("backfill cve %s: %w", v.URL, err)
	}
	return nil
}

func (s *PostgresStore) upsertNews(ctx context.Context, n domain.NewsItem, sessionID string) (ports.UpsertOutcome, error) {
	query, args, err := psql.Insert(newsTable).
		Columns("title", "title_translated", "summary", "published_date",
			"original_language", "source", "url", "intrigue",
			"session_id", "created_at").
		Values(n.Title, n.TitleTranslated, n.Summary, n.PublishedAt,
			n.Language, n.Source, n.URL, n.Intrigue,
			sessionID, time.Now().UTC()).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build news insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("insert news: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("news rows affected: %w", err)
	}
	if affected > 0 {
		return ports.OutcomeStored, nil
	}

	if err := s.backfillNews(ctx, n); err != nil {
		return "", err
	}
	return ports.OutcomeSkippedDuplicate, nil
}

// backfillNews mirrors backfillVulnerability for the news variant: fill
// originally-empty fields, log drifted summaries, never overwrite.
func (s *PostgresStore) backfillNews(ctx context.Context, n domain.NewsItem) error {
	var storedSummary string
	query, args, err := psql.Select("summary").
		From(newsTable).
		Where(sq.Eq{"url": n.URL}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build news lookup: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&storedSummary); err != nil {
		return fmt.Errorf("lookup news %s: %w", n.URL, err)
	}

	if storedSummary != "" && storedSummary != n.Summary {
		s.logger.Info("duplicate url with drifted classification, keeping first write",
			"url", n.URL)
	}

	backfill, args, err := psql.Update(newsTable).
		Set("title_translated", sq.Expr("COALESCE(NULLIF(title_translated, ''), ?)", n.TitleTranslated)).
		Set("summary", sq.Expr("COALESCE(NULLIF(summary, ''), ?)", n.Summary)).
		Where(sq.Eq{"url": n.URL}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build news backfill: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, backfill, args...); err != nil {
		return fmt.Errorf("backfill news %s: %w", n.URL, err)
	}
	return nil
}

// RecentSince returns all records created at or after the given time,
// regardless of when they were published.
func (s *PostgresStore) RecentSince(ctx context.Context, since time.Time) ([]domain.ClassifiedRecord, error) {
	if s.db == nil {
		return nil, nil
	}

	where := sq.GtOrEq{"created_at": since}

	records, err := s.queryCVEs(ctx, where, 0)
	if err != nil {
		return nil, err
	}
	news, err := s.queryNews(ctx, where, 0)
	if err != nil {
		return nil, err
	}
	return append(records, news...), nil
}

// BySession returns every record a run produced.
func (s *PostgresStore) BySession(ctx context.Context, sessionID string) ([]domain.ClassifiedRecord, error) {
	if s.db == nil {
		return nil, nil
	}

	var records []domain.ClassifiedRecord

	cves, err := s.queryCVEs(ctx, sq.Eq{"session_id": sessionID}, domain.MaxResultsCap)
	if err != nil {
		return nil, err
	}
	records = append(records, cves...)

	news, err := s.queryNews(ctx, sq.Eq{"session_id": sessionID}, domain.MaxResultsCap)
	if err != nil {
		return nil, err
	}
	return append(records, news...), nil
}

// Query returns records matching the filter. CVEs rank by a severity/intrigue
// composite, news by intrigue; the limit is clamped into [1, MaxResultsCap].
func (s *PostgresStore) Query(ctx context.Context, filter ports.QueryFilter) ([]domain.ClassifiedRecord, error) {
	if s.db == nil {
		return nil, nil
	}

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
		where := sq.And{}
		if len(filter.Severities) > 0 {
			values := make([]string, 0, len(filter.Severities))
			for _, sev := range filter.Severities {
				values = append(values, string(sev))
			}
			where = append(where, sq.Eq{"severity": values})
		}
		if !filter.Since.IsZero() {
			where = append(where, sq.GtOrEq{"published_date": filter.Since})
		}
		cves, err := s.queryCVEs(ctx, where, limit)
		if err != nil {
			return nil, err
		}
		records = append(records, cves...)
	}

	if contentType == domain.ContentNews || contentType == domain.ContentBoth {
		where := sq.And{}
		if !filter.Since.IsZero() {
			where = append(where, sq.GtOrEq{"published_date": filter.Since})
		}
		news, err := s.queryNews(ctx, where, limit)
		if err != nil {
			return nil, err
		}
		records = append(records, news...)
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// queryCVEs runs a ranked select; limit 0 means unbounded.
func (s *PostgresStore) queryCVEs(ctx context.Context, where sq.Sqlizer, limit int) ([]domain.ClassifiedRecord, error) {
	builder := psql.Select("cve_id", "title", "title_translated", "summary",
		"severity", "cvss_score", "affected_products", "published_date",
		"original_language", "source", "url", "intrigue", "session_id", "created_at").
		From(cveTable).
		OrderBy("(cvss_score * 0.6 + intrigue * 0.4) DESC", "published_date DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cve query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cves: %w", err)
	}
	defer rows.Close()

	var records []domain.ClassifiedRecord
	for rows.Next() {
		var v domain.Vulnerability
		var severity string
		var products pq.StringArray
		if err := rows.Scan(&v.CVEID, &v.Title, &v.TitleTranslated, &v.Summary,
			&severity, &v.CVSSScore, &products, &v.PublishedAt,
			&v.Language, &v.Source, &v.URL, &v.Intrigue, &v.SessionID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cve: %w", err)
		}
		v.Severity = domain.Severity(severity)
		v.AffectedProducts = products
		vuln := v
		records = append(records, domain.ClassifiedRecord{Kind: domain.KindVulnerability, Vuln: &vuln})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cve rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) queryNews(ctx context.Context, where sq.Sqlizer, limit int) ([]domain.ClassifiedRecord, error) {
	builder := psql.Select("title", "title_translated", "summary", "published_date",
		"original_language", "source", "url", "intrigue", "session_id", "created_at").
		From(newsTable).
		OrderBy("intrigue DESC", "published_date DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build news query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	var records []domain.ClassifiedRecord
	for rows.Next() {
		var n domain.NewsItem
		if err := rows.Scan(&n.Title, &n.TitleTranslated, &n.Summary, &n.PublishedAt,
			&n.Language, &n.Source, &n.URL, &n.Intrigue, &n.SessionID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		item := n
		records = append(records, domain.ClassifiedRecord{Kind: domain.KindNews, News: &item})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("news rows: %w", err)
	}
	return records, nil
}
