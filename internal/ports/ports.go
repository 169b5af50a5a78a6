package ports

import (
	"context"
	"time"

	"sentinel/internal/domain"
)

// ChatClient sends a prompt to an LLM backend and returns the raw completion text.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Classifier turns a raw article into a classified record.
type Classifier interface {
	Classify(ctx context.Context, article domain.RawArticle) (domain.ClassifiedRecord, error)
}

// Translator converts text from a source language into English.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) (string, error)
}

// UpsertOutcome reports what a store did with a classified record.
type UpsertOutcome string

const (
	OutcomeStored           UpsertOutcome = "stored"
	OutcomeSkippedDuplicate UpsertOutcome = "skipped_duplicate"
)

// QueryFilter narrows read-only record queries.
type QueryFilter struct {
	ContentType domain.ContentType
	Severities  []domain.Severity
	Since       time.Time
	Limit       int
}

// RecordStore persists classified records with per-variant URL uniqueness.
type RecordStore interface {
	Upsert(ctx context.Context, record domain.ClassifiedRecord, sessionID string) (UpsertOutcome, error)
	RecentSince(ctx context.Context, since time.Time) ([]domain.ClassifiedRecord, error)
	BySession(ctx context.Context, sessionID string) ([]domain.ClassifiedRecord, error)
	Query(ctx context.Context, filter QueryFilter) ([]domain.ClassifiedRecord, error)
}

// Notifier delivers a run report plus a sample of its top records.
type Notifier interface {
	Notify(ctx context.Context, report domain.RunReport, sample []domain.ClassifiedRecord) error
}

// Trigger drives scheduled runs.
type Trigger interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
