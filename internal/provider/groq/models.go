package groq

import (
	"strings"

	"github.com/davidbz/studygate/internal/domain"
)

//nolint:gochecknoglobals // read-only lookup table
var reasoningHints = []string{
	"step by step",
	"explain in detail",
	"prove",
	"why does",
	"compare",
}

// selectModel picks a tier. The small instant model handles short chat turns;
// reasoning-heavy prompts and structured output go to the versatile model.
func (c Config) selectModel(messages []domain.ChatMessage, opts domain.CompletionOptions) string {
	switch {
	case opts.ForcePremium:
		return c.PremiumModel
	case opts.ForceUpgrade, opts.ResponseFormat == domain.ResponseFormatJSON:
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

	// Long conversations need the larger context window.
	if len(messages) > 12 {
		return c.UpgradedModel
	}

	lower := strings.ToLower(text)
	for _, hint := range reasoningHints {
		if strings.Contains(lower, hint) {
			return c.UpgradedModel
		}
	}

	return c.DefaultModel
}
