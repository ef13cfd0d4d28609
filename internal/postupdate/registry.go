package postupdate

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// FactoryConfig carries everything a strategy needs to construct itself.
type FactoryConfig struct {
	// Settings holds the strategy-specific settings keyed by upper-case name.
	Settings map[string]string

	// Timeout bounds one propagation attempt.
	Timeout time.Duration

	// Logger is the logger the strategy should use.
	Logger *slog.Logger
}

// Factory creates an Action from configuration.
type Factory func(cfg FactoryConfig) (Action, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory registers a factory for a strategy name.
func (r *Registry) RegisterFactory(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Create builds the Action for typeName.
func (r *Registry) Create(typeName string, cfg FactoryConfig) (Action, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown post-update type: %s", typeName)
	}

	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	action, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating post-update %s: %w", typeName, err)
	}
	return action, nil
}

// Types returns the registered strategy names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
