package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"sentinel/internal/domain"
)

// ErrMalformedResponse signals that no valid classification object could be
// extracted from the model reply. Callers drop the article (soft failure).
var ErrMalformedResponse = errors.New("malformed classification response")

var cveIDExpr = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,}`)

// Result is the validated, well-typed outcome of one model reply.
type Result struct {
	Kind             domain.RecordKind
	CVEIDs           []string
	Severity         domain.Severity
	CVSSScore        float64
	Summary          string
	Intrigue         float64
	AffectedProducts []string
}

// wire mirrors the JSON contract the prompt demands. Models drift on field
// types (numbers as strings, single id instead of a list), so the flexible
// wrappers coerce instead of failing.
type wire struct {
	Type             string      `json:"type"`
	CVEID            flexStrings `json:"cve_id"`
	Severity         string      `json:"severity"`
	CVSSScore        flexFloat   `json:"cvss_score"`
	Summary          string      `json:"summary"`
	Intrigue         flexFloat   `json:"intrigue"`
	AffectedProducts flexStrings `json:"affected_products"`
}

// ParseResult extracts the first valid classification object from a model
// reply, ignoring any prose around it. Replies without one, or with an
// unusable object, yield ErrMalformedResponse.
func ParseResult(raw string) (Result, error) {
	for _, candidate := range jsonObjects(raw) {
		var w wire
		if err := json.Unmarshal([]byte(candidate), &w); err != nil {
			continue
		}
		result, err := w.validate()
		if err != nil {
			continue
		}
		return result, nil
	}
	return Result{}, ErrMalformedResponse
}

func (w wire) validate() (Result, error) {
	var kind domain.RecordKind
	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case "cve", "vulnerability":
		kind = domain.KindVulnerability
	case "news":
		kind = domain.KindNews
	default:
		return Result{}, fmt.Errorf("unknown type %q", w.Type)
	}

	summary := strings.TrimSpace(w.Summary)
	if summary == "" {
		return Result{}, errors.New("empty summary")
	}

	return Result{
		Kind:             kind,
		CVEIDs:           extractCVEIDs(w.CVEID),
		Severity:         domain.ParseSeverity(w.Severity),
		CVSSScore:        clamp(float64(w.CVSSScore), 0, 10),
		Summary:          summary,
		Intrigue:         clamp(float64(w.Intrigue), 0, 10),
		AffectedProducts: trimAll(w.AffectedProducts),
	}, nil
}

// extractCVEIDs keeps only entries that look like real CVE identifiers,
// discarding placeholders such as "Unknown".
func extractCVEIDs(values []string) []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, v := range values {
		id := strings.ToUpper(cveIDExpr.FindString(v))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// jsonObjects returns every top-level {...} block in the text, tracking
// string literals so braces inside values do not split objects.
func jsonObjects(s string) []string {
	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					objects = append(objects, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return objects
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// flexStrings accepts either a JSON string or an array of strings.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = []string{single}
		return nil
	}
	// Unusable shape; treat as absent rather than failing the whole object.
	*f = nil
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexFloat(parsed)
			return nil
		}
	}
	*f = 0
	return nil
}
