package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sentinel/internal/domain"
	"sentinel/internal/scanner"
)

// ListingScanner crawls paginated HTML news listings. Selectors come from
// site options so one strategy serves differently-structured sites:
// itemSelector picks one entry, titleSelector a link inside it, and
// summarySelector the teaser text.
type ListingScanner struct {
	client   *http.Client
	maxPages int
}

var _ scanner.Scanner = (*ListingScanner)(nil)

// NewListingScanner wires an HTTP client; pagination defaults to 3 pages.
func NewListingScanner(client *http.Client) *ListingScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ListingScanner{client: client, maxPages: 3}
}

// Name identifies the strategy inside the registry.
func (s *ListingScanner) Name() string {
	return "listing"
}

// Fetch walks listing pages and extracts entry links with their teasers.
func (s *ListingScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawArticle, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no listing url provided for site %s", req.SiteName)
	}

	itemSelector := option(req.Options, "itemSelector", "div.node-news")
	titleSelector := option(req.Options, "titleSelector", "h2 a")
	summarySelector := option(req.Options, "summarySelector", "div.content p")

	base, err := url.Parse(req.URLs[0])
	if err != nil {
		return nil, fmt.Errorf("invalid listing url %s: %w", req.URLs[0], err)
	}

	var articles []domain.RawArticle
	seen := map[string]struct{}{}

	for page := 1; page <= s.maxPages; page++ {
		doc, err := s.fetchPage(ctx, pageURL(base, page))
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}

		found := 0
		doc.Find(itemSelector).Each(func(i int, item *goquery.Selection) {
			link := item.Find(titleSelector).First()
			href, ok := link.Attr("href")
			if !ok {
				return
			}

			resolved := href
			if parsed, err := url.Parse(href); err == nil {
				resolved = base.ResolveReference(parsed).String()
			}
			if _, dup := seen[resolved]; dup {
				return
			}

			summary := strings.TrimSpace(item.Find(summarySelector).First().Text())

			seen[resolved] = struct{}{}
			articles = append(articles, domain.RawArticle{
				Source:      req.SiteName,
				Title:       strings.TrimSpace(link.Text()),
				Content:     summary,
				Language:    req.Language,
				URL:         resolved,
				ScrapedAt:   time.Now().UTC(),
				PublishedAt: time.Now().UTC(),
			})
			found++
		})

		if found == 0 {
			break
		}
	}

	return articles, nil
}

func (s *ListingScanner) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "sentinel/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return doc, nil
}

func pageURL(base *url.URL, page int) string {
	if page <= 1 {
		return base.String()
	}
	u := *base
	query := u.Query()
	query.Set("page", fmt.Sprint(page-1))
	u.RawQuery = query.Encode()
	return u.String()
}

func option(options map[string]string, key, fallback string) string {
	if v, ok := options[key]; ok && v != "" {
		return v
	}
	return fallback
}
