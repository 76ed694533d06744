package domain

import "context"

// ModelPrice contains model pricing in USD per one million tokens.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CostCalculator calculates cost based on token usage.
type CostCalculator interface {
	// Calculate returns the cost of usage on the given model in USD.
	Calculate(ctx context.Context, model string, usage Usage) (float64, error)
}

// PricingRegistry maintains pricing information for models.
type PricingRegistry interface {
	GetPricing(ctx context.Context, model string) (ModelPrice, error)
	RegisterPricing(ctx context.Context, model string, price ModelPrice) error
}
