// Package groq provides the Groq adapter over Groq's OpenAI-compatible API.
package groq

import (
	"time"

	"github.com/davidbz/studygate/internal/provider/openaicompat"
)

const providerName = "groq"

// Provider implements domain.Adapter and domain.Streamer for Groq.
type Provider struct {
	*openaicompat.Adapter
}

// NewProvider creates a new Groq provider.
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
