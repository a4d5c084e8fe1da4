package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"AlertEnricher/internal/metrics"
	"AlertEnricher/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	log      *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring ticks.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, log: log}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.RunOnce(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// RunOnce executes a single tick, logging its report. A panic inside the
// tick is logged and swallowed so the loop keeps going.
func (s *Scheduler) RunOnce(ctx context.Context, trigger time.Time) (report TickReport, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
			metrics.TicksTotal.WithLabelValues("failed").Inc()
			s.log.Error("tick panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	report, err = s.pipeline.Tick(ctx)
	metrics.TickDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.TicksTotal.WithLabelValues("failed").Inc()
		s.log.Error("tick failed", "tick", report.ID, "reason", report.SkipReason, "error", err)
	case report.Skipped:
		metrics.TicksTotal.WithLabelValues("skipped").Inc()
	default:
		metrics.TicksTotal.WithLabelValues("completed").Inc()
		if report.Selected > 0 || report.ParseErrors > 0 {
			s.log.Info("tick completed",
				"tick", report.ID,
				"trigger", trigger.Format(time.RFC3339),
				"selected", report.Selected,
				"inserted", report.Inserted,
				"already_stored", report.AlreadyStored,
				"failed", report.Failed,
				"parse_errors", report.ParseErrors,
				"checkpoint", report.NewCheckpoint,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
		}
	}
	return report, err
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
