package gemini

import (
	"context"
	"fmt"

	"github.com/davidbz/studygate/internal/domain"
)

// RegisterPricing registers Gemini model pricing with the registry.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	models := map[string]domain.ModelPrice{
		"gemini-2.0-flash-lite": {InputPerMillion: 0.075, OutputPerMillion: 0.30},
		"gemini-2.0-flash":      {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"gemini-2.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 10.00},
	}

	for model, price := range models {
		if err := registry.RegisterPricing(ctx, model, price); err != nil {
			return fmt.Errorf("failed to register pricing for model %s: %w", model, err)
		}
	}

	return nil
}
