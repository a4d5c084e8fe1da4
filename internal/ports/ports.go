package ports

import (
	"context"
	"iter"
	"time"

	"AlertEnricher/internal/domain"
)

// AlertSource yields the alert log from the beginning on every call.
type AlertSource interface {
	Records(ctx context.Context) (iter.Seq2[domain.AlertRecord, error], error)
}

// CheckpointStore persists the highest fully processed alert id.
type CheckpointStore interface {
	Read(ctx context.Context) (int64, error)
	Write(ctx context.Context, value int64) error
}

// TaskQueue keeps durable markers, keyed by AlertRecord.Key, for alerts
// selected for enrichment.
type TaskQueue interface {
	Enqueue(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	Pending(ctx context.Context) ([]string, error)
}

// StateStore bundles checkpoint and queue for backends that provide both.
type StateStore interface {
	CheckpointStore
	TaskQueue
	Close() error
}

// Enricher derives opinion/mitigation/context for one alert.
type Enricher interface {
	Enrich(ctx context.Context, alert domain.AlertRecord) (domain.Enrichment, error)
}

// SummaryStore persists summaries idempotently keyed by alert key.
type SummaryStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	UpsertIfAbsent(ctx context.Context, summary domain.Summary) (domain.UpsertResult, error)
	List(ctx context.Context) ([]domain.Summary, error)
}

// Notifier announces newly stored summaries.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.Summary) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
