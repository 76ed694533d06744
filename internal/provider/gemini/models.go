package gemini

import (
	"strings"

	"github.com/davidbz/studygate/internal/domain"
)

//nolint:gochecknoglobals // read-only lookup table
var upgradeHints = []string{
	"step by step",
	"explain in detail",
	"prove",
	"solve",
}

// selectModel picks a tier. Flash-lite already reads images, so only
// prompt size, structure and reasoning hints move a request up.
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
