package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"AlertEnricher/internal/config"
	"AlertEnricher/internal/httpapi"
	"AlertEnricher/internal/infrastructure/alertlog"
	"AlertEnricher/internal/infrastructure/llm"
	"AlertEnricher/internal/infrastructure/scheduler"
	"AlertEnricher/internal/infrastructure/state"
	"AlertEnricher/internal/infrastructure/storage"
	"AlertEnricher/internal/infrastructure/telegram"
	"AlertEnricher/internal/logging"
	"AlertEnricher/internal/ports"
	"AlertEnricher/internal/usecase"
)

const stopTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
// Adapters are opened lazily so commands only touch what they need.
type Application struct {
	cfg      config.Config
	log      *slog.Logger
	registry *state.Registry

	state     ports.StateStore
	summaries ports.SummaryStore
	db        *sql.DB
}

// New builds an application without opening any connection.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	return &Application{
		cfg:      cfg,
		log:      baseLogger,
		registry: state.DefaultRegistry(),
	}
}

// State opens (once) the configured checkpoint and marker backend.
func (a *Application) State(ctx context.Context) (ports.StateStore, error) {
	if a.state != nil {
		return a.state, nil
	}
	st, err := a.registry.Open(ctx, a.cfg.State, a.log.With("component", "state"))
	if err != nil {
		return nil, err
	}
	a.state = st
	return st, nil
}

// Summaries opens (once) the summary store. Without database settings the
// store is in-memory and nothing survives a restart.
func (a *Application) Summaries(ctx context.Context) (ports.SummaryStore, error) {
	if a.summaries != nil {
		return a.summaries, nil
	}

	dsn := a.cfg.Database.ConnString()
	if dsn == "" {
		a.log.Warn("no database configured, summaries are kept in memory")
		a.summaries = storage.NewMemoryRepository()
		return a.summaries, nil
	}

	log := a.log.With("component", "storage")
	db, err := storage.Connect(ctx, dsn, a.cfg.Database.MaxRetries, a.cfg.Database.RetryDelay(), log)
	if err != nil {
		return nil, err
	}
	repo := storage.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Warn("schema not created yet, will retry on first use", "error", err)
	}

	a.db = db
	a.summaries = repo
	return repo, nil
}

// Pipeline assembles the tick use case from config.
func (a *Application) Pipeline(ctx context.Context) (*usecase.Pipeline, error) {
	st, err := a.State(ctx)
	if err != nil {
		return nil, err
	}
	summaries, err := a.Summaries(ctx)
	if err != nil {
		return nil, err
	}

	enricher := llm.WithBreaker(
		llm.NewOllamaClient(a.cfg.Enrichment),
		a.cfg.Enrichment.Breaker,
		a.log.With("component", "enrichment"),
	)

	var notifier ports.Notifier
	if tg := a.cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:      alertlog.NewReader(a.cfg.Source.LogPath, a.log.With("component", "alertlog")),
		Checkpoints: st,
		Tasks:       st,
		Enricher:    enricher,
		Store:       summaries,
		Notifier:    notifier,
		Logger:      a.log.With("component", "pipeline"),
	}, usecase.PipelineOptions{
		SeverityThreshold:      a.cfg.Source.SeverityThreshold,
		CheckpointPolicy:       a.cfg.Pipeline.CheckpointPolicy,
		Workers:                a.cfg.Enrichment.Workers,
		Throttle:               a.cfg.Enrichment.Throttle(),
		RemoveMarkersOnSuccess: a.cfg.State.RemoveMarkersOnSuccess,
	}), nil
}

// RunOnce executes a single tick.
func (a *Application) RunOnce(ctx context.Context) (usecase.TickReport, error) {
	pipeline, err := a.Pipeline(ctx)
	if err != nil {
		return usecase.TickReport{}, err
	}
	sched := usecase.NewScheduler(nil, pipeline, a.log.With("component", "scheduler"))
	return sched.RunOnce(ctx, time.Now())
}

// Run polls until ctx is cancelled. With serve set the read API runs alongside.
func (a *Application) Run(ctx context.Context, serve bool) error {
	pipeline, err := a.Pipeline(ctx)
	if err != nil {
		return err
	}

	inFlight, err := pipeline.InFlight(ctx)
	if err != nil {
		a.log.Warn("could not inspect pending markers", "error", err)
	} else if len(inFlight) > 0 {
		a.log.Info("resuming after interrupted batch", "pending", inFlight)
	}

	driver := scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval(), a.log.With("component", "scheduler"))
	if a.cfg.Scheduler.Watch {
		driver.WatchFile(a.cfg.Source.LogPath)
	}
	sched := usecase.NewScheduler(driver, pipeline, a.log.With("component", "scheduler"))

	g, gctx := errgroup.WithContext(ctx)
	if err := sched.Start(gctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.log.Info("polling alert log",
		"path", a.cfg.Source.LogPath,
		"interval", a.cfg.Scheduler.Interval(),
		"threshold", a.cfg.Source.SeverityThreshold,
		"policy", a.cfg.Pipeline.CheckpointPolicy,
	)

	if serve {
		g.Go(func() error {
			return httpapi.NewServer(a.summaries, a.log.With("component", "http")).ListenAndServe(gctx, a.cfg.HTTP.Addr)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Serve runs only the read API.
func (a *Application) Serve(ctx context.Context) error {
	summaries, err := a.Summaries(ctx)
	if err != nil {
		return err
	}
	return httpapi.NewServer(summaries, a.log.With("component", "http")).ListenAndServe(ctx, a.cfg.HTTP.Addr)
}

// Close releases whatever was opened.
func (a *Application) Close() error {
	var errs []error
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
