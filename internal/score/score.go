// Package score normalizes the intrigue estimate of classified records.
// It is a pure fallback layer: the classification engine's own estimate wins
// when it is inside [0, 10]; out-of-range values are clamped and absent ones
// replaced with a severity-derived default.
package score

import "sentinel/internal/domain"

const (
	minScore = 0
	maxScore = 10

	// newsDefault ranks unscored news below any scored vulnerability.
	newsDefault = 1.0
)

// Normalize returns the ranking score for a record, always inside [0, 10].
// Deterministic given the same record.
func Normalize(record domain.ClassifiedRecord) float64 {
	raw := record.Intrigue()
	if raw > minScore && raw <= maxScore {
		return raw
	}
	if raw > maxScore {
		return maxScore
	}

	// Absent (or negative) estimate: derive a default.
	if record.Kind == domain.KindVulnerability && record.Vuln != nil {
		return vulnerabilityDefault(*record.Vuln)
	}
	return newsDefault
}

// Apply writes the normalized score back into the record.
func Apply(record *domain.ClassifiedRecord) {
	record.SetIntrigue(Normalize(*record))
}

// vulnerabilityDefault scores an unestimated vulnerability proportionally to
// its CVSS score, falling back to a severity ladder when that is absent too.
func vulnerabilityDefault(v domain.Vulnerability) float64 {
	if v.CVSSScore > 0 {
		return clamp(v.CVSSScore)
	}
	switch v.Severity {
	case domain.SeverityCritical:
		return 9
	case domain.SeverityHigh:
		return 7
	case domain.SeverityMedium:
		return 5
	default:
		return 3
	}
}

func clamp(v float64) float64 {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}
