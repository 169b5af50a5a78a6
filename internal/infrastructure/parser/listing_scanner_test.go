package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/scanner"
)

func TestListingScannerFetch(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages = append(pages, r.URL.RawQuery)
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, `<html><body></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
<div class="node-news">
  <h2><a href="/news/breach-at-vendor">Breach at vendor</a></h2>
  <div class="content"><p>Attackers stole source code.</p></div>
</div>
<div class="node-news">
  <h2><a href="/news/new-ransomware">New ransomware strain</a></h2>
  <div class="content"><p>Spreads over SMB.</p></div>
</div>
</body></html>`)
	}))
	defer srv.Close()

	s := NewListingScanner(srv.Client())
	articles, err := s.Fetch(context.Background(), scanner.Request{
		SiteName: "anti-malware",
		Language: "ru",
		URLs:     []string{srv.URL + "/news"},
	})
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "Breach at vendor", articles[0].Title)
	assert.Equal(t, srv.URL+"/news/breach-at-vendor", articles[0].URL)
	assert.Equal(t, "Attackers stole source code.", articles[0].Content)
	assert.Equal(t, "ru", articles[0].Language)
	assert.Equal(t, "anti-malware", articles[0].Source)

	// pagination stops after the first empty page
	require.GreaterOrEqual(t, len(pages), 2)
	assert.Equal(t, "", pages[0])
	assert.Equal(t, "page=1", pages[1])
}

func TestListingScannerCustomSelectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, `<html><body></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>
<article class="post">
  <h3><a href="https://example.com/p1">Custom layout</a></h3>
  <span class="teaser">short teaser</span>
</article>
</body></html>`)
	}))
	defer srv.Close()

	s := NewListingScanner(srv.Client())
	articles, err := s.Fetch(context.Background(), scanner.Request{
		SiteName: "custom",
		Language: "en",
		URLs:     []string{srv.URL},
		Options: map[string]string{
			"itemSelector":    "article.post",
			"titleSelector":   "h3 a",
			"summarySelector": "span.teaser",
		},
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Custom layout", articles[0].Title)
	assert.Equal(t, "https://example.com/p1", articles[0].URL)
	assert.Equal(t, "short teaser", articles[0].Content)
}

func TestListingScannerFirstPageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewListingScanner(srv.Client())
	_, err := s.Fetch(context.Background(), scanner.Request{SiteName: "anti-malware", URLs: []string{srv.URL}})
	assert.Error(t, err)
}
