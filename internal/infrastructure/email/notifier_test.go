package email

import (
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/config"
	"sentinel/internal/domain"
)

func testConfig() config.EmailConfig {
	return config.EmailConfig{
		Host:     "mail.example.com",
		Port:     587,
		Username: "scanner",
		Password: "secret",
		From:     "scanner@example.com",
		To:       "team@example.com",
	}
}

func testReport() domain.RunReport {
	return domain.RunReport{
		SessionID:     "abc-123",
		Mode:          domain.ModeProduction,
		Success:       true,
		CVEsFound:     2,
		NewsFound:     1,
		SourcesOK:     3,
		SourcesFailed: 1,
		Elapsed:       42 * time.Second,
	}
}

func TestNotifierSendsReport(t *testing.T) {
	n := NewNotifier(testConfig(), slog.Default())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	sample := []domain.ClassifiedRecord{
		{
			Kind: domain.KindVulnerability,
			Vuln: &domain.Vulnerability{
				CVEID:    "CVE-2026-1111",
				Title:    "Router RCE",
				Severity: domain.SeverityCritical,
				Intrigue: 9.5,
				URL:      "https://example.com/a",
			},
		},
		{
			Kind: domain.KindNews,
			News: &domain.NewsItem{
				Title:    "Vendor breach",
				Intrigue: 6.0,
				URL:      "https://example.com/b",
			},
		},
	}

	require.NoError(t, n.Notify(context.Background(), testReport(), sample))

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "scanner@example.com", gotFrom)
	assert.Equal(t, []string{"team@example.com"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "Subject: Security scan completed (production mode)")
	assert.Contains(t, body, "Session: abc-123")
	assert.Contains(t, body, "CVEs found: 2")
	assert.Contains(t, body, "Sources: 3 ok, 1 failed")
	assert.Contains(t, body, "CVE-2026-1111")
	assert.Contains(t, body, "Vendor breach")
}

func TestNotifierFailureSubjectAndError(t *testing.T) {
	n := NewNotifier(testConfig(), slog.Default())

	var gotMsg []byte
	n.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	report := testReport()
	report.Success = false
	report.Err = "all sources failed"

	require.NoError(t, n.Notify(context.Background(), report, nil))
	assert.Contains(t, string(gotMsg), "Subject: Security scan failed")
	assert.Contains(t, string(gotMsg), "Error: all sources failed")
}

func TestNotifierUnconfiguredIsNoop(t *testing.T) {
	n := NewNotifier(config.EmailConfig{}, slog.Default())
	n.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("send should not be called")
		return nil
	}
	assert.NoError(t, n.Notify(context.Background(), testReport(), nil))
}

func TestNotifierPropagatesSendError(t *testing.T) {
	n := NewNotifier(testConfig(), slog.Default())
	n.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}
	err := n.Notify(context.Background(), testReport(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send report mail")
}
