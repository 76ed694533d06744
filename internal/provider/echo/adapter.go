// Package echo provides an offline adapter that answers with the latest user
// message. It makes no network calls and has no native streaming, so streams
// through it exercise the single-final-chunk default.
package echo

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo-1"
)

// Config controls whether the echo adapter joins the chain.
type Config struct {
	Enabled bool `env:"ECHO_ENABLED" envDefault:"false"`
}

// Provider implements domain.Adapter for local development and tests.
type Provider struct {
	name string
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{name: providerName}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Available always reports true; echo needs no credentials.
func (p *Provider) Available() bool {
	return true
}

// Complete returns the latest user message prefixed with its role.
func (p *Provider) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	_ domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	latest, ok := domain.LatestUserMessage(messages)
	if !ok {
		return nil, domain.NewError(domain.CodeValidation, "no user message to echo")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	content := buildEchoContent(latest)

	promptTokens := 0
	for _, msg := range messages {
		promptTokens += countTokens(msg.Text())
	}
	completionTokens := countTokens(content)

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", promptTokens),
		observability.Int("completion_tokens", completionTokens),
	)

	return &domain.CompletionResult{
		Content:  content,
		Provider: p.name,
		Model:    modelName,
		Usage: &domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func buildEchoContent(msg domain.ChatMessage) string {
	text := msg.Text()
	if msg.HasImages() {
		images := 0
		for _, part := range msg.Parts {
			if part.Type == domain.PartImage {
				images++
			}
		}
		text = fmt.Sprintf("%s (+%d image)", text, images)
	}
	return fmt.Sprintf("[%s]: %s", msg.Role, text)
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	return len(strings.Fields(content))
}
