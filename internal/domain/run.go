package domain

import "time"

// Mode selects the configuration profile driving a run.
type Mode string

const (
	ModeTesting    Mode = "testing"
	ModeProduction Mode = "production"
	ModeManual     Mode = "manual"
)

// ContentType restricts which record variants a run produces or queries.
type ContentType string

const (
	ContentCVE  ContentType = "cve"
	ContentNews ContentType = "news"
	ContentBoth ContentType = "both"
)

const (
	// MaxResultsCap bounds how many records any run or query may return.
	MaxResultsCap = 30
	defaultLookbackDays = 7
	defaultMaxResults   = 10
)

// RunParams are the requested parameters of one pipeline execution.
type RunParams struct {
	ContentType  ContentType
	Severities   []Severity
	LookbackDays int
	MaxResults   int
}

// Normalize fills defaults and clamps MaxResults into [1, MaxResultsCap].
func (p RunParams) Normalize() RunParams {
	if p.ContentType == "" {
		p.ContentType = ContentBoth
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = defaultLookbackDays
	}
	if p.MaxResults <= 0 {
		p.MaxResults = defaultMaxResults
	}
	if p.MaxResults > MaxResultsCap {
		p.MaxResults = MaxResultsCap
	}
	return p
}

// WantsSeverity reports whether the params admit the given severity.
// An empty filter admits everything.
func (p RunParams) WantsSeverity(s Severity) bool {
	if len(p.Severities) == 0 {
		return true
	}
	for _, want := range p.Severities {
		if want == s {
			return true
		}
	}
	return false
}

// Cutoff is the oldest publication time the params admit.
func (p RunParams) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.LookbackDays)
}

// RunSession is the ephemeral identity of one pipeline execution.
type RunSession struct {
	ID        string
	Mode      Mode
	StartedAt time.Time
	Params    RunParams
}

// RunReport summarizes one completed run.
type RunReport struct {
	SessionID     string
	Mode          Mode
	Success       bool
	CVEsFound     int
	NewsFound     int
	SourcesOK     int
	SourcesFailed int
	Elapsed       time.Duration
	Err           string
}
