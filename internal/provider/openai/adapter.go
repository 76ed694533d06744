// Package openai provides the OpenAI adapter built on the official SDK.
// Request plumbing is shared with other OpenAI-compatible providers through
// openaicompat; this package owns configuration, model tiers and pricing.
package openai

import (
	"time"

	"github.com/davidbz/studygate/internal/provider/openaicompat"
)

const providerName = "openai"

// Provider implements domain.Adapter and domain.Streamer for OpenAI.
type Provider struct {
	*openaicompat.Adapter
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) *Provider {
	return &Provider{
		Adapter: openaicompat.New(openaicompat.Config{
			Name:       providerName,
			APIKey:     config.APIKey,
			BaseURL:    config.BaseURL,
			Timeout:    time.Duration(config.Timeout) * time.Second,
			MaxRetries: config.MaxRetries,
		}, config.selectModel),
	}
}
