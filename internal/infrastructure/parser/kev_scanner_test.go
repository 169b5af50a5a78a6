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

func TestKEVScannerFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
  "vulnerabilities": [
    {
      "cveID": "CVE-2026-1111",
      "vulnerabilityName": "Router RCE",
      "dateAdded": "2026-01-05",
      "shortDescription": "Unauthenticated remote code execution.",
      "requiredAction": "Apply vendor patch."
    },
    {
      "cveID": "CVE-2020-9999",
      "vulnerabilityName": "Old bug",
      "dateAdded": "2020-03-01",
      "shortDescription": "Ancient issue.",
      "requiredAction": "Patch."
    }
  ]
}`)
	}))
	defer srv.Close()

	s := NewKEVScanner(srv.Client())
	articles, err := s.Fetch(context.Background(), scanner.Request{
		Since:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SiteName: "cisa-kev",
		Language: "en",
		URLs:     []string{srv.URL},
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)

	assert.Equal(t, "Router RCE", articles[0].Title)
	assert.Equal(t, "https://nvd.nist.gov/vuln/detail/CVE-2026-1111", articles[0].URL)
	assert.Contains(t, articles[0].Content, "remote code execution")
	assert.Contains(t, articles[0].Content, "vendor patch")
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestKEVScannerBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewKEVScanner(srv.Client())
	_, err := s.Fetch(context.Background(), scanner.Request{SiteName: "cisa-kev", URLs: []string{srv.URL}})
	assert.Error(t, err)
}

func TestKEVScannerMalformedCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"vulnerabilities": [`)
	}))
	defer srv.Close()

	s := NewKEVScanner(srv.Client())
	_, err := s.Fetch(context.Background(), scanner.Request{SiteName: "cisa-kev", URLs: []string{srv.URL}})
	assert.Error(t, err)
}
