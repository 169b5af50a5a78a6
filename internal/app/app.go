package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"sentinel/internal/classify"
	"sentinel/internal/collector"
	"sentinel/internal/config"
	"sentinel/internal/domain"
	"sentinel/internal/infrastructure/email"
	"sentinel/internal/infrastructure/llm"
	"sentinel/internal/infrastructure/parser"
	"sentinel/internal/infrastructure/scheduler"
	"sentinel/internal/infrastructure/storage"
	"sentinel/internal/logging"
	"sentinel/internal/ports"
	"sentinel/internal/ratelimit"
	"sentinel/internal/scanner"
	"sentinel/internal/usecase"
)

// Application wires configs to the pipeline and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *usecase.Scheduler
	store     ports.RecordStore
	db        *sql.DB
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(nil))
	registry.Register(parser.NewKEVScanner(nil))
	registry.Register(parser.NewListingScanner(nil))

	limiter := ratelimit.New(limiterOptions(cfg.RateLimit), baseLogger.With("component", "ratelimit"))

	col := collector.New(registry, cfg.Sites, limiter, cfg.Collector.Workers,
		baseLogger.With("component", "collector"))

	var translator ports.Translator
	if cfg.Translator.Endpoint != "" {
		translator = llm.NewTranslator(cfg.Translator)
	}
	engine := classify.NewEngine(llm.NewClient(cfg.LLM), translator, limiter,
		baseLogger.With("component", "classify"))

	store, db, err := buildStore(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	agent := usecase.NewAgent(col, engine, store, cfg.LLM.Workers,
		baseLogger.With("component", "agent"))

	mode := cfg.RunMode()
	profile := cfg.ProfileFor(mode)

	notifier := email.NewNotifier(cfg.Notifications.Email, baseLogger)
	trigger := scheduler.NewTicker(profile.Interval, baseLogger)

	sched := usecase.NewScheduler(agent, trigger, notifier, usecase.SchedulerOptions{
		Mode:            mode,
		Params:          profile.Params,
		NotifyOnTesting: cfg.Scheduler.NotifyOnTesting,
	}, baseLogger)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		scheduler: sched,
		store:     store,
		db:        db,
	}, nil
}

// Serve starts scheduled execution and blocks until the context is
// cancelled, then drains the in-flight run.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// RunOnce executes a single manual pipeline run.
func (a *Application) RunOnce(ctx context.Context) error {
	report := a.scheduler.RunOnce(ctx)
	if !report.Success {
		return fmt.Errorf("run %s failed: %s", report.SessionID, report.Err)
	}
	return nil
}

// Query returns persisted records matching the filter, ranked the way the
// store ranks them.
func (a *Application) Query(ctx context.Context, filter ports.QueryFilter) ([]domain.ClassifiedRecord, error) {
	return a.store.Query(ctx, filter)
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// buildStore selects Postgres when a DSN is configured and an in-memory
// store otherwise, so the scanner stays runnable without a database.
func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.RecordStore, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database configured, records are kept in memory only")
		return storage.NewMemoryStore(logger), nil, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	store := storage.NewPostgresStore(db, logger)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return store, db, nil
}

func limiterOptions(cfg config.RateLimitConfig) ratelimit.Options {
	opts := ratelimit.Options{
		Default: ratelimit.ClassLimit{
			PerSecond: cfg.DefaultPerSecond,
			Burst:     cfg.DefaultBurst,
		},
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}
	if len(cfg.Classes) > 0 {
		opts.Classes = make(map[string]ratelimit.ClassLimit, len(cfg.Classes))
		for name, class := range cfg.Classes {
			opts.Classes[name] = ratelimit.ClassLimit{
				PerSecond: class.PerSecond,
				Burst:     class.Burst,
			}
		}
	}
	return opts
}
