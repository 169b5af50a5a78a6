package domain

import (
	"strings"
	"time"
)

// Severity levels assigned to vulnerability records.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllSeverities lists every severity in ascending order.
var AllSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity normalizes free-form severity text; unknown input maps to low.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RecordKind tags the two classified record variants.
type RecordKind string

const (
	KindVulnerability RecordKind = "cve"
	KindNews          RecordKind = "news"
)

// SessionUnknown stamps records produced outside a real run context.
const SessionUnknown = "unknown"

// Vulnerability is the classified record for a disclosure with an identifiable CVE.
type Vulnerability struct {
	CVEID            string
	Title            string
	TitleTranslated  string
	Summary          string
	Severity         Severity
	CVSSScore        float64
	AffectedProducts []string
	PublishedAt      time.Time
	Language         string
	Source           string
	URL              string
	Intrigue         float64
	SessionID        string
	CreatedAt        time.Time
}

// NewsItem is the classified record for generic security news.
type NewsItem struct {
	Title           string
	TitleTranslated string
	Summary         string
	PublishedAt     time.Time
	Language        string
	Source          string
	URL             string
	Intrigue        float64
	SessionID       string
	CreatedAt       time.Time
}

// ClassifiedRecord is the tagged union emitted by the classification engine.
// Exactly one of Vuln or News is set, matching Kind.
type ClassifiedRecord struct {
	Kind RecordKind
	Vuln *Vulnerability
	News *NewsItem
}

// URL returns the origin URL of whichever variant is populated.
func (r ClassifiedRecord) URL() string {
	if r.Kind == KindVulnerability && r.Vuln != nil {
		return r.Vuln.URL
	}
	if r.News != nil {
		return r.News.URL
	}
	return ""
}

// Intrigue returns the relevance estimate of whichever variant is populated.
func (r ClassifiedRecord) Intrigue() float64 {
	if r.Kind == KindVulnerability && r.Vuln != nil {
		return r.Vuln.Intrigue
	}
	if r.News != nil {
		return r.News.Intrigue
	}
	return 0
}

// PublishedAt returns the publication time of whichever variant is populated.
func (r ClassifiedRecord) PublishedAt() time.Time {
	if r.Kind == KindVulnerability && r.Vuln != nil {
		return r.Vuln.PublishedAt
	}
	if r.News != nil {
		return r.News.PublishedAt
	}
	return time.Time{}
}

// SetIntrigue writes the relevance estimate back into the populated variant.
func (r *ClassifiedRecord) SetIntrigue(v float64) {
	if r.Kind == KindVulnerability && r.Vuln != nil {
		r.Vuln.Intrigue = v
	}
	if r.Kind == KindNews && r.News != nil {
		r.News.Intrigue = v
	}
}

// Stamp records run provenance on the populated variant.
func (r *ClassifiedRecord) Stamp(sessionID string, at time.Time) {
	if sessionID == "" {
		sessionID = SessionUnknown
	}
	if r.Vuln != nil {
		r.Vuln.SessionID = sessionID
		r.Vuln.CreatedAt = at
	}
	if r.News != nil {
		r.News.SessionID = sessionID
		r.News.CreatedAt = at
	}
}

// SessionID reads back the provenance stamp of the populated variant.
func (r ClassifiedRecord) SessionID() string {
	if r.Kind == KindVulnerability && r.Vuln != nil {
		return r.Vuln.SessionID
	}
	if r.News != nil {
		return r.News.SessionID
	}
	return ""
}
