package storage

import (
	"context"
	"sort"
	"sync"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

// MemoryRepository keeps summaries in a map; used by tests and when no
// database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]domain.Summary
}

var _ ports.SummaryStore = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]domain.Summary)}
}

func (r *MemoryRepository) Exists(_ context.Context, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rows[key]
	return ok, nil
}

func (r *MemoryRepository) UpsertIfAbsent(_ context.Context, summary domain.Summary) (domain.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[summary.AlertID]; ok {
		return domain.AlreadyExists, nil
	}
	r.rows[summary.AlertID] = summary.Sanitized()
	return domain.Inserted, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]domain.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Summary, 0, len(r.rows))
	for _, s := range r.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq > out[j].Seq
		}
		return domain.KeyLess(out[j].AlertID, out[i].AlertID)
	})
	return out, nil
}
