// Package registry keeps the named adapters compiled into the gateway and
// turns a configured provider order into a chain order.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

// Registry holds adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]domain.Adapter
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]domain.Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(_ context.Context, adapter domain.Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}

	r.adapters[name] = adapter
	return nil
}

// Get retrieves an adapter by name.
func (r *Registry) Get(_ context.Context, name string) (domain.Adapter, error) {
	if name == "" {
		return nil, errors.New("adapter name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("adapter %s not found", name)
	}

	return adapter, nil
}

// List returns the registered adapter names in lexical order.
func (r *Registry) List(_ context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Ordered returns the adapters named in order. Unknown and repeated names are
// skipped. Registered adapters missing from order are not included.
func (r *Registry) Ordered(ctx context.Context, order []string) []domain.Adapter {
	logger := observability.FromContext(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(order))
	adapters := make([]domain.Adapter, 0, len(order))

	for _, raw := range order {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		adapter, exists := r.adapters[name]
		if !exists {
			logger.Warn("ignoring unknown provider in chain order", observability.String("provider", name))
			continue
		}
		adapters = append(adapters, adapter)
	}

	return adapters
}
