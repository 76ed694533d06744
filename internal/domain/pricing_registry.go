package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// InMemoryPricingRegistry stores model prices in memory.
type InMemoryPricingRegistry struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// NewInMemoryPricingRegistry creates an empty pricing registry.
func NewInMemoryPricingRegistry() *InMemoryPricingRegistry {
	return &InMemoryPricingRegistry{
		prices: make(map[string]ModelPrice),
	}
}

// GetPricing retrieves the price of a model.
func (r *InMemoryPricingRegistry) GetPricing(_ context.Context, model string) (ModelPrice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	price, exists := r.prices[model]
	if !exists {
		return ModelPrice{}, fmt.Errorf("pricing not found for model: %s", model)
	}

	return price, nil
}

// RegisterPricing sets the price of a model, replacing any previous value.
func (r *InMemoryPricingRegistry) RegisterPricing(_ context.Context, model string, price ModelPrice) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prices[model] = price
	return nil
}
