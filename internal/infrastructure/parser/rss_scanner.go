package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"sentinel/internal/domain"
	"sentinel/internal/scanner"
)

const defaultFeedItems = 20

// RSSScanner fetches articles from RSS/Atom feeds. When a site option names
// a body selector, each entry's page is fetched and the selected element's
// text becomes the article body; otherwise the feed's own description is used.
type RSSScanner struct {
	client   *http.Client
	maxItems int
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner wires an HTTP client; maxItems defaults to 20 per feed.
func NewRSSScanner(client *http.Client) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSScanner{client: client, maxItems: defaultFeedItems}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Fetch walks each configured feed and returns entries published after the
// requested cutoff.
func (s *RSSScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawArticle, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no feed urls provided for site %s", req.SiteName)
	}

	parser := gofeed.NewParser()
	parser.Client = s.client

	bodySelector := req.Options["bodySelector"]

	var articles []domain.RawArticle
	seen := map[string]struct{}{}

	for _, feedURL := range req.URLs {
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
		}

		count := 0
		for _, entry := range feed.Items {
			if count >= s.maxItems {
				break
			}
			if entry.Link == "" {
				continue
			}
			if _, ok := seen[entry.Link]; ok {
				continue
			}

			published := entryTime(entry)
			if !req.Since.IsZero() && !published.IsZero() && published.Before(req.Since) {
				continue
			}

			content := strings.TrimSpace(entry.Description)
			if content == "" {
				content = strings.TrimSpace(entry.Content)
			}
			if bodySelector != "" {
				if body, err := s.fetchBody(ctx, entry.Link, bodySelector); err == nil && body != "" {
					content = body
				}
			}

			seen[entry.Link] = struct{}{}
			articles = append(articles, domain.RawArticle{
				Source:      req.SiteName,
				Title:       strings.TrimSpace(entry.Title),
				Content:     content,
				Language:    req.Language,
				URL:         entry.Link,
				ScrapedAt:   time.Now().UTC(),
				PublishedAt: published,
			})
			count++
		}
	}

	return articles, nil
}

// fetchBody downloads an entry page and extracts the text of the configured
// body element (paragraphs and code blocks, newline separated).
func (s *RSSScanner) fetchBody(ctx context.Context, pageURL, selector string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "sentinel/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	body := doc.Find(selector).First()
	if body.Length() == 0 {
		return "", nil
	}

	var parts []string
	body.Find("p, pre").Each(func(i int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(body.Text()), nil
	}
	return strings.Join(parts, "\n\n"), nil
}

func entryTime(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	return time.Time{}
}
