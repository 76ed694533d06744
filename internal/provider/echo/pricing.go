package echo

import (
	"context"
	"fmt"

	"github.com/davidbz/studygate/internal/domain"
)

// RegisterPricing registers echo model pricing with the registry.
// Echo answers are free.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	if err := registry.RegisterPricing(ctx, modelName, domain.ModelPrice{}); err != nil {
		return fmt.Errorf("failed to register echo pricing: %w", err)
	}
	return nil
}
