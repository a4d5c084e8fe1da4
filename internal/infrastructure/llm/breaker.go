package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sony/gobreaker"

	"AlertEnricher/internal/config"
	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/metrics"
	"AlertEnricher/internal/ports"
)

// BreakerEnricher fails fast once the wrapped enricher keeps failing, so a
// dead model server does not cost a full timeout per alert.
type BreakerEnricher struct {
	next ports.Enricher
	cb   *gobreaker.CircuitBreaker
}

var _ ports.Enricher = (*BreakerEnricher)(nil)

// WithBreaker wraps next. Zero failures disables the breaker and returns next unchanged.
func WithBreaker(next ports.Enricher, cfg config.BreakerConfig, log *slog.Logger) ports.Enricher {
	if cfg.Failures <= 0 {
		return next
	}
	if log == nil {
		log = slog.Default()
	}
	threshold := uint32(cfg.Failures)

	settings := gobreaker.Settings{
		Name:        "ollama",
		MaxRequests: 1,
		Timeout:     cfg.OpenFor(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			log.Warn("enrichment breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A cancelled tick says nothing about the model server.
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerEnricher{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerEnricher) Enrich(ctx context.Context, alert domain.AlertRecord) (domain.Enrichment, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Enrich(ctx, alert)
	})
	if err != nil {
		var enrichErr *domain.EnrichmentError
		if errors.As(err, &enrichErr) {
			return domain.Enrichment{}, err
		}
		return domain.Enrichment{}, &domain.EnrichmentError{AlertID: alert.Key(), Err: err}
	}
	return out.(domain.Enrichment), nil
}

// State reports the breaker position for diagnostics.
func (b *BreakerEnricher) State() gobreaker.State {
	return b.cb.State()
}
