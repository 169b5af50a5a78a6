package email

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/domain"
	"sentinel/internal/ports"
)

const maxSampleLines = 10

// Notifier sends run reports over SMTP.
type Notifier struct {
	cfg    config.EmailConfig
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
	logger *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier builds an SMTP-backed notifier from the email config.
func NewNotifier(cfg config.EmailConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger.With("component", "email"),
	}
}

// Notify renders the report as plain text mail and delivers it.
func (n *Notifier) Notify(ctx context.Context, report domain.RunReport, sample []domain.ClassifiedRecord) error {
	if n.cfg.Host == "" || n.cfg.To == "" {
		n.logger.Warn("email channel not configured, skipping notification",
			"session_id", report.SessionID)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(n.cfg.From, n.cfg.To, report, sample)
	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprint(n.cfg.Port))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := n.send(addr, auth, n.cfg.From, []string{n.cfg.To}, msg); err != nil {
		return fmt.Errorf("send report mail: %w", err)
	}

	n.logger.Info("run report delivered",
		"session_id", report.SessionID,
		"to", n.cfg.To)
	return nil
}

func buildMessage(from, to string, report domain.RunReport, sample []domain.ClassifiedRecord) []byte {
	var b strings.Builder

	status := "completed"
	if !report.Success {
		status = "failed"
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Security scan %s (%s mode)\r\n", status, report.Mode)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Session: %s\n", report.SessionID)
	fmt.Fprintf(&b, "Mode: %s\n", report.Mode)
	fmt.Fprintf(&b, "Duration: %s\n", report.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "CVEs found: %d\n", report.CVEsFound)
	fmt.Fprintf(&b, "News found: %d\n", report.NewsFound)
	fmt.Fprintf(&b, "Sources: %d ok, %d failed\n", report.SourcesOK, report.SourcesFailed)
	if report.Err != "" {
		fmt.Fprintf(&b, "Error: %s\n", report.Err)
	}

	if len(sample) > 0 {
		b.WriteString("\nTop findings:\n")
		for i, rec := range sample {
			if i >= maxSampleLines {
				break
			}
			b.WriteString(sampleLine(rec))
		}
	}

	return []byte(b.String())
}

func sampleLine(rec domain.ClassifiedRecord) string {
	if rec.Vuln != nil {
		v := rec.Vuln
		id := v.CVEID
		if id == "" {
			id = "no CVE id"
		}
		return fmt.Sprintf("  [%s] %s (%s, intrigue %.1f)\n    %s\n",
			id, v.Title, v.Severity, v.Intrigue, v.URL)
	}
	if rec.News != nil {
		return fmt.Sprintf("  %s (intrigue %.1f)\n    %s\n",
			rec.News.Title, rec.News.Intrigue, rec.News.URL)
	}
	return ""
}
