package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/scanner"
)

func feedXML(entries string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>test feed</title>` + entries + `</channel></rss>`
}

func TestRSSScannerFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML(`
<item><title>First advisory</title><link>https://example.com/a</link>
<description>buffer overflow details</description>
<pubDate>Mon, 02 Jan 2026 10:00:00 GMT</pubDate></item>
<item><title>Old advisory</title><link>https://example.com/old</link>
<description>ancient news</description>
<pubDate>Mon, 05 Jan 2015 10:00:00 GMT</pubDate></item>`))
	}))
	defer srv.Close()

	s := NewRSSScanner(srv.Client())
	articles, err := s.Fetch(context.Background(), scanner.Request{
		Since:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SiteName: "testfeed",
		Language: "en",
		URLs:     []string{srv.URL},
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)

	assert.Equal(t, "First advisory", articles[0].Title)
	assert.Equal(t, "https://example.com/a", articles[0].URL)
	assert.Equal(t, "buffer overflow details", articles[0].Content)
	assert.Equal(t, "testfeed", articles[0].Source)
	assert.Equal(t, "en", articles[0].Language)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestRSSScannerBodySelector(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML(fmt.Sprintf(`
<item><title>Deep dive</title><link>%s/article</link>
<description>teaser only</description>
<pubDate>Mon, 02 Jan 2026 10:00:00 GMT</pubDate></item>`, srv.URL)))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="artical-body"><p>first paragraph</p><pre>exploit code</pre></div>
</body></html>`)
	})

	s := NewRSSScanner(srv.Client())
	articles, err := s.Fetch(context.Background(), scanner.Request{
		SiteName: "testfeed",
		Language: "zh",
		URLs:     []string{srv.URL + "/feed"},
		Options:  map[string]string{"bodySelector": "div.artical-body"},
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "first paragraph\n\nexploit code", articles[0].Content)
}

func TestRSSScannerDuplicateLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML(`
<item><title>Same story</title><link>https://example.com/a</link><description>x</description></item>
<item><title>Same story repost</title><link>https://example.com/a</link><description>x</description></item>`))
	}))
	defer srv.Close()

	s := NewRSSScanner(srv.Client())
	articles, err := s.Fetch(context.Background(), scanner.Request{
		SiteName: "testfeed",
		URLs:     []string{srv.URL},
	})
	require.NoError(t, err)
	assert.Len(t, articles, 1)
}

func TestRSSScannerFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewRSSScanner(srv.Client())
	_, err := s.Fetch(context.Background(), scanner.Request{
		SiteName: "testfeed",
		URLs:     []string{srv.URL},
	})
	assert.Error(t, err)
}
