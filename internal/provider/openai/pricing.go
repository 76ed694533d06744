package openai

import (
	"context"
	"fmt"

	"github.com/davidbz/studygate/internal/domain"
)

// RegisterPricing registers OpenAI model pricing with the registry.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	models := map[string]domain.ModelPrice{
		"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"gpt-4.1":     {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	}

	for model, price := range models {
		if err := registry.RegisterPricing(ctx, model, price); err != nil {
			return fmt.Errorf("failed to register pricing for model %s: %w", model, err)
		}
	}

	return nil
}
