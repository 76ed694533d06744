package domain

import (
	"context"
	"errors"
)

const tokensPerMillion = 1_000_000.0

// StandardCostCalculator prices usage from a PricingRegistry.
type StandardCostCalculator struct {
	pricing PricingRegistry
}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator(pricing PricingRegistry) *StandardCostCalculator {
	return &StandardCostCalculator{
		pricing: pricing,
	}
}

// Calculate computes the cost of usage. Unknown models cost zero.
func (c *StandardCostCalculator) Calculate(ctx context.Context, model string, usage Usage) (float64, error) {
	if model == "" {
		return 0, errors.New("model cannot be empty")
	}

	price, err := c.pricing.GetPricing(ctx, model)
	if err != nil {
		//nolint:nilerr // unknown pricing must not fail the request
		return 0, nil
	}

	input := float64(usage.PromptTokens) / tokensPerMillion * price.InputPerMillion
	output := float64(usage.CompletionTokens) / tokensPerMillion * price.OutputPerMillion

	return input + output, nil
}
