package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"AlertEnricher/internal/config"
	"AlertEnricher/internal/ports"
)

// Factory opens one kind of state backend from config.
type Factory func(ctx context.Context, cfg config.StateConfig, log *slog.Logger) (ports.StateStore, error)

// Registry keeps a mapping from backend names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry knows every backend shipped with the service.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.BackendFile, func(_ context.Context, cfg config.StateConfig, _ *slog.Logger) (ports.StateStore, error) {
		return NewFileStore(cfg.CheckpointPath, cfg.PendingDir), nil
	})
	r.Register(config.BackendBadger, func(_ context.Context, cfg config.StateConfig, log *slog.Logger) (ports.StateStore, error) {
		return OpenBadger(BadgerConfig{Path: cfg.BadgerPath, SyncWrites: true, Logger: log})
	})
	r.Register(config.BackendRedis, func(ctx context.Context, cfg config.StateConfig, _ *slog.Logger) (ports.StateStore, error) {
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	})
	r.Register(config.BackendMemory, func(context.Context, config.StateConfig, *slog.Logger) (ports.StateStore, error) {
		return NewMemoryStore(), nil
	})
	return r
}

// Register adds or replaces a backend factory.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Resolve returns a factory by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Factory, error) {
	if factory, ok := r.factories[name]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("state backend %s is not registered (known: %v)", name, r.Names())
}

// Names lists registered backends in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open resolves cfg.Backend and opens it.
func (r *Registry) Open(ctx context.Context, cfg config.StateConfig, log *slog.Logger) (ports.StateStore, error) {
	factory, err := r.Resolve(cfg.Backend)
	if err != nil {
		return nil, err
	}
	store, err := factory(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s state: %w", cfg.Backend, err)
	}
	return store, nil
}
