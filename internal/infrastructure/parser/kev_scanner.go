package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sentinel/internal/domain"
	"sentinel/internal/scanner"
)

const kevDetailURL = "https://nvd.nist.gov/vuln/detail/"

// KEVScanner reads the CISA Known Exploited Vulnerabilities catalog.
type KEVScanner struct {
	client   *http.Client
	maxItems int
}

var _ scanner.Scanner = (*KEVScanner)(nil)

// NewKEVScanner wires an HTTP client; maxItems defaults to 20.
func NewKEVScanner(client *http.Client) *KEVScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &KEVScanner{client: client, maxItems: defaultFeedItems}
}

// Name identifies the strategy inside the registry.
func (s *KEVScanner) Name() string {
	return "kev"
}

// Fetch downloads the catalog and returns entries added after the cutoff.
func (s *KEVScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawArticle, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no catalog url provided for site %s", req.SiteName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URLs[0], nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "sentinel/1.0")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %s", resp.Status)
	}

	var catalog struct {
		Vulnerabilities []struct {
			CVEID             string `json:"cveID"`
			VulnerabilityName string `json:"vulnerabilityName"`
			DateAdded         string `json:"dateAdded"`
			ShortDescription  string `json:"shortDescription"`
			RequiredAction    string `json:"requiredAction"`
		} `json:"vulnerabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	var articles []domain.RawArticle
	for _, v := range catalog.Vulnerabilities {
		if len(articles) >= s.maxItems {
			break
		}

		added, _ := time.Parse("2006-01-02", v.DateAdded)
		if !req.Since.IsZero() && !added.IsZero() && added.Before(req.Since) {
			continue
		}

		articles = append(articles, domain.RawArticle{
			Source:      req.SiteName,
			Title:       v.VulnerabilityName,
			Content:     v.ShortDescription + " " + v.RequiredAction,
			Language:    req.Language,
			URL:         kevDetailURL + v.CVEID,
			ScrapedAt:   time.Now().UTC(),
			PublishedAt: added,
		})
	}

	return articles, nil
}
