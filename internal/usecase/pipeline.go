package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/metrics"
	"AlertEnricher/internal/ports"
)

// Checkpoint policies for a batch where some alerts failed.
const (
	PolicyWatermark = "watermark"
	PolicyBatch     = "batch"
)

// Per-alert outcomes, also used as metric labels.
const (
	resultEnqueueFailed = "enqueue_failed"
	resultEnrichFailed  = "enrich_failed"
	resultStoreFailed   = "store_failed"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source      ports.AlertSource
	Checkpoints ports.CheckpointStore
	Tasks       ports.TaskQueue
	Enricher    ports.Enricher
	Store       ports.SummaryStore
	Notifier    ports.Notifier
	Logger      *slog.Logger
}

// PipelineOptions tunes selection, concurrency and checkpoint semantics.
type PipelineOptions struct {
	SeverityThreshold      int
	CheckpointPolicy       string
	Workers                int
	Throttle               time.Duration
	RemoveMarkersOnSuccess bool
}

// TickReport summarises one pass over the alert log.
type TickReport struct {
	ID            string
	Skipped       bool
	SkipReason    string
	Checkpoint    int64
	NewCheckpoint int64
	ParseErrors   int
	Selected      int
	Inserted      int
	AlreadyStored int
	Failed        int
	CheckpointErr error
}

// Pipeline implements the alert enrichment workflow.
type Pipeline struct {
	source      ports.AlertSource
	checkpoints ports.CheckpointStore
	tasks       ports.TaskQueue
	enricher    ports.Enricher
	store       ports.SummaryStore
	notifier    ports.Notifier
	log         *slog.Logger

	opts    PipelineOptions
	limiter *rate.Limiter
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CheckpointPolicy == "" {
		opts.CheckpointPolicy = PolicyWatermark
	}
	limit := rate.Inf
	if opts.Throttle > 0 {
		limit = rate.Every(opts.Throttle)
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		source:      deps.Source,
		checkpoints: deps.Checkpoints,
		tasks:       deps.Tasks,
		enricher:    deps.Enricher,
		store:       deps.Store,
		notifier:    deps.Notifier,
		log:         log,
		opts:        opts,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Tick runs one batch: read the checkpoint, select new alerts, enrich and
// store each one, then advance the checkpoint according to the policy.
// A returned error means the tick was abandoned before any checkpoint write.
func (p *Pipeline) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{ID: uuid.NewString()}
	log := p.log.With("tick", report.ID)

	checkpoint, err := p.checkpoints.Read(ctx)
	if err != nil {
		report.Skipped = true
		report.SkipReason = "checkpoint unreadable"
		return report, fmt.Errorf("read checkpoint: %w", err)
	}
	report.Checkpoint = checkpoint
	report.NewCheckpoint = checkpoint

	records, parseErrors, err := p.collect(ctx, log)
	report.ParseErrors = parseErrors
	if errors.Is(err, domain.ErrSourceUnavailable) {
		report.Skipped = true
		report.SkipReason = "alert log unavailable"
		log.Debug("alert log unavailable, skipping tick")
		return report, nil
	}
	if err != nil {
		report.Skipped = true
		report.SkipReason = "alert log read failed"
		return report, err
	}

	sel := SelectAlerts(records, checkpoint, p.opts.SeverityThreshold)
	report.Selected = len(sel.Alerts)
	if sel.Empty() {
		return report, nil
	}
	log.Info("processing alerts", "count", len(sel.Alerts), "checkpoint", checkpoint, "max_id", sel.MaxID)

	ok := p.processAll(ctx, log, sel.Alerts, &report)

	next := NextCheckpoint(p.opts.CheckpointPolicy, checkpoint, sel, ok)
	if next > checkpoint {
		if err := p.checkpoints.Write(ctx, next); err != nil {
			report.CheckpointErr = &domain.CheckpointWriteError{Value: next, Err: err}
			log.Error("checkpoint not advanced", "error", report.CheckpointErr)
			return report, nil
		}
		report.NewCheckpoint = next
		metrics.Checkpoint.Set(float64(next))
		log.Info("checkpoint advanced", "from", checkpoint, "to", next)
	} else if report.Failed > 0 {
		log.Warn("checkpoint held back by failed alerts", "checkpoint", checkpoint, "failed", report.Failed)
	}

	return report, nil
}

func (p *Pipeline) collect(ctx context.Context, log *slog.Logger) ([]domain.AlertRecord, int, error) {
	seq, err := p.source.Records(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		records     []domain.AlertRecord
		parseErrors int
	)
	for rec, err := range seq {
		if err != nil {
			var parseErr *domain.ParseError
			if errors.As(err, &parseErr) {
				parseErrors++
				metrics.ParseErrorsTotal.Inc()
				log.Warn("skipping malformed alert line", "line", parseErr.Line, "error", parseErr.Err)
				continue
			}
			return nil, parseErrors, fmt.Errorf("read alert log: %w", err)
		}
		records = append(records, rec)
	}
	return records, parseErrors, nil
}

// processAll handles every selected alert and reports which succeeded, in
// the same order as alerts. Workers bounds how many run at once.
func (p *Pipeline) processAll(ctx context.Context, log *slog.Logger, alerts []domain.AlertRecord, report *TickReport) []bool {
	ok := make([]bool, len(alerts))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, alert := range alerts {
		g.Go(func() error {
			result, err := p.processAlert(ctx, log, alert)
			metrics.AlertsTotal.WithLabelValues(result).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				log.Error("alert not stored", "alert_id", alert.Key(), "result", result, "error", err)
			case result == domain.Inserted.String():
				ok[i] = true
				report.Inserted++
				log.Info("summary stored", "alert_id", alert.Key(), "machine", alert.Machine())
			default:
				ok[i] = true
				report.AlreadyStored++
				log.Debug("summary already present", "alert_id", alert.Key())
			}
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

func (p *Pipeline) processAlert(ctx context.Context, log *slog.Logger, alert domain.AlertRecord) (string, error) {
	key := alert.Key()
	if err := ctx.Err(); err != nil {
		return resultEnqueueFailed, err
	}
	if err := p.tasks.Enqueue(ctx, key); err != nil {
		return resultEnqueueFailed, &domain.EnqueueError{AlertID: key, Err: err}
	}

	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return resultStoreFailed, storageErr(key, "exists", err)
	}
	if exists {
		p.done(ctx, log, key)
		return domain.AlreadyExists.String(), nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return resultEnrichFailed, &domain.EnrichmentError{AlertID: key, Err: err}
	}
	enrichment, err := p.enricher.Enrich(ctx, alert)
	if err != nil {
		var enrichErr *domain.EnrichmentError
		if !errors.As(err, &enrichErr) {
			err = &domain.EnrichmentError{AlertID: key, Err: err}
		}
		return resultEnrichFailed, err
	}
	if enrichment.Machine == "" {
		enrichment.Machine = alert.Machine()
	}

	summary := domain.NewSummary(alert, enrichment)
	res, err := p.store.UpsertIfAbsent(ctx, summary)
	if err != nil {
		return resultStoreFailed, storageErr(key, "insert", err)
	}

	if res == domain.Inserted && p.notifier != nil {
		if err := p.notifier.PublishSummary(ctx, summary.Sanitized()); err != nil {
			log.Warn("summary notification failed", "alert_id", key, "error", err)
		}
	}
	p.done(ctx, log, key)
	return res.String(), nil
}

func (p *Pipeline) done(ctx context.Context, log *slog.Logger, key string) {
	if !p.opts.RemoveMarkersOnSuccess {
		return
	}
	if err := p.tasks.Remove(ctx, key); err != nil {
		log.Warn("remove marker failed", "alert_id", key, "error", err)
	}
}

// InFlight returns pending markers above the stored checkpoint: alerts that
// were picked up by an earlier run whose batch never committed.
func (p *Pipeline) InFlight(ctx context.Context) ([]string, error) {
	checkpoint, err := p.checkpoints.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	pending, err := p.tasks.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	var out []string
	for _, key := range pending {
		if seq, ok := domain.KeySeq(key); ok && seq > checkpoint {
			out = append(out, key)
		}
	}
	return out, nil
}

// NextCheckpoint applies the policy to a processed selection. ok[i] reports
// whether sel.Alerts[i] ended up stored. The result never reaches the ID of a
// failed alert and is never below current.
func NextCheckpoint(policy string, current int64, sel Selection, ok []bool) int64 {
	next := current
	switch policy {
	case PolicyBatch:
		for i := range sel.Alerts {
			if !ok[i] {
				return current
			}
		}
		next = sel.MaxID
	default:
		for i, alert := range sel.Alerts {
			if !ok[i] {
				// Alerts sharing the failed ID must stay above the checkpoint.
				if next == alert.ID {
					next = current
					for _, prev := range sel.Alerts[:i] {
						if prev.ID < alert.ID {
							next = prev.ID
						}
					}
				}
				break
			}
			next = alert.ID
		}
	}
	if next < current {
		return current
	}
	return next
}

func storageErr(key, op string, err error) error {
	var storeErr *domain.StorageError
	if errors.As(err, &storeErr) {
		return err
	}
	return &domain.StorageError{AlertID: key, Op: op, Err: err}
}
