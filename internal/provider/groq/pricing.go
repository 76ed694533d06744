package groq

import (
	"context"
	"fmt"

	"github.com/davidbz/studygate/internal/domain"
)

// RegisterPricing registers Groq model pricing with the registry.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	models := map[string]domain.ModelPrice{
		"llama-3.1-8b-instant":    {InputPerMillion: 0.05, OutputPerMillion: 0.08},
		"llama-3.3-70b-versatile": {InputPerMillion: 0.59, OutputPerMillion: 0.79},
		"openai/gpt-oss-120b":     {InputPerMillion: 0.15, OutputPerMillion: 0.75},
	}

	for model, price := range models {
		if err := registry.RegisterPricing(ctx, model, price); err != nil {
			return fmt.Errorf("failed to register pricing for model %s: %w", model, err)
		}
	}

	return nil
}
