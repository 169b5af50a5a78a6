package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sentinel/internal/app"
	"sentinel/internal/config"
	"sentinel/internal/domain"
	"sentinel/internal/logging"
	"sentinel/internal/ports"
)

func main() {
	once := flag.Bool("once", false, "run a single scan and exit")
	query := flag.String("query", "", "print stored records and exit: cve, news or both")
	days := flag.Int("days", 7, "lookback window in days for -query")
	limit := flag.Int("limit", 10, "result cap for -query")
	severities := flag.String("severity", "", "comma-separated severity filter for -query")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	switch {
	case *query != "":
		if err := runQuery(ctx, application, *query, *days, *limit, *severities); err != nil {
			logger.Error("query failed", "error", err)
			os.Exit(1)
		}
	case *once:
		if err := application.RunOnce(ctx); err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
	default:
		if err := application.Serve(ctx); err != nil {
			logger.Error("application stopped", "error", err)
			os.Exit(1)
		}
	}
}

func runQuery(ctx context.Context, application *app.Application, contentType string, days, limit int, severities string) error {
	filter := ports.QueryFilter{
		ContentType: domain.ContentType(contentType),
		Since:       time.Now().UTC().AddDate(0, 0, -days),
		Limit:       limit,
	}
	for _, s := range strings.Split(severities, ",") {
		if s = strings.TrimSpace(s); s != "" {
			filter.Severities = append(filter.Severities, domain.ParseSeverity(s))
		}
	}

	records, err := application.Query(ctx, filter)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Vuln != nil {
			fmt.Printf("[%s] %s (%s, intrigue %.1f)\n    %s\n",
				rec.Vuln.CVEID, rec.Vuln.Title, rec.Vuln.Severity, rec.Vuln.Intrigue, rec.Vuln.URL)
			continue
		}
		if rec.News != nil {
			fmt.Printf("%s (intrigue %.1f)\n    %s\n",
				rec.News.Title, rec.News.Intrigue, rec.News.URL)
		}
	}
	return nil
}
