package state

import (
	"context"
	"sync"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

// MemoryStore is a process-local StateStore for tests and dry runs.
type MemoryStore struct {
	mu         sync.Mutex
	checkpoint int64
	pending    map[string]struct{}
}

var _ ports.StateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string]struct{})}
}

func (s *MemoryStore) Read(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint, nil
}

func (s *MemoryStore) Write(_ context.Context, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = value
	return nil
}

func (s *MemoryStore) Enqueue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = struct{}{}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

func (s *MemoryStore) Pending(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	domain.SortKeys(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }
