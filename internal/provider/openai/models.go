package openai

import (
	"strings"

	"github.com/davidbz/studygate/internal/domain"
)

// upgradeHints are phrases that call for a stronger model.
//
//nolint:gochecknoglobals // read-only lookup table
var upgradeHints = []string{
	"step by step",
	"explain in detail",
	"prove",
	"derive",
}

// selectModel picks the default, upgraded or premium model for a request.
func (c Config) selectModel(messages []domain.ChatMessage, opts domain.CompletionOptions) string {
	if opts.ForcePremium {
		return c.PremiumModel
	}

	if opts.ForceUpgrade || opts.ResponseFormat == domain.ResponseFormatJSON {
		return c.UpgradedModel
	}

	latest, ok := domain.LatestUserMessage(messages)
	if !ok {
		return c.DefaultModel
	}

	// Vision input needs the larger model.
	if latest.HasImages() {
		return c.UpgradedModel
	}

	text := latest.Text()
	if c.UpgradeThreshold > 0 && len(text) > c.UpgradeThreshold {
		return c.UpgradedModel
	}

	lower := strings.ToLower(text)
	for _, hint := range upgradeHints {
		if strings.Contains(lower, hint) {
			return c.UpgradedModel
		}
	}

	return c.DefaultModel
}
