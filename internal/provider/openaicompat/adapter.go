// Package openaicompat implements the adapter plumbing shared by providers that
// expose the OpenAI chat completions API. It converts domain messages to SDK
// parameters, maps SDK errors onto the domain taxonomy and pumps SDK streams
// into domain chunks. Model selection stays with each concrete provider.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

const (
	opComplete = "chatCompletion"
	opStream   = "chatCompletionStream"
)

// ModelSelector picks the model for one request.
type ModelSelector func(messages []domain.ChatMessage, opts domain.CompletionOptions) string

// Config holds the connection settings of one OpenAI-compatible endpoint.
type Config struct {
	Name       string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Adapter talks to an OpenAI-compatible chat completions endpoint.
type Adapter struct {
	name        string
	available   bool
	client      openai.Client
	selectModel ModelSelector
}

// New creates an adapter. An empty API key yields an unavailable adapter.
func New(cfg Config, selectModel ModelSelector) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Adapter{
		name:        cfg.Name,
		available:   cfg.APIKey != "",
		client:      openai.NewClient(opts...),
		selectModel: selectModel,
	}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// Available reports whether an API key is configured.
func (a *Adapter) Available() bool {
	return a.available
}

// Complete sends a completion request and returns the full answer.
func (a *Adapter) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	ctx, cancel := opts.WithTimeout(ctx)
	defer cancel()

	model := a.selectModel(messages, opts)
	logger := observability.FromContext(ctx).With(
		observability.String("provider", a.name),
		observability.String("model", model),
	)
	logger.Debug("calling chat completions API")

	resp, err := a.client.Chat.Completions.New(ctx, toParams(model, messages, opts))
	if err != nil {
		return nil, a.wrap(ctx, opComplete, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, domain.NewProviderError(a.name, opComplete,
			domain.NewError(domain.CodeParse, "empty completion"))
	}

	logger.Debug("chat completions API call succeeded",
		observability.Int64("prompt_tokens", resp.Usage.PromptTokens),
		observability.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	if resp.Model != "" {
		model = resp.Model
	}

	return &domain.CompletionResult{
		Content:  resp.Choices[0].Message.Content,
		Provider: a.name,
		Model:    model,
		Usage:    toUsage(resp.Usage),
	}, nil
}

// Stream sends a streaming completion request.
// Request failures surface as an error chunk before any delta.
func (a *Adapter) Stream(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) (<-chan domain.StreamChunk, error) {
	ctx, cancel := opts.WithTimeout(ctx)

	model := a.selectModel(messages, opts)
	params := toParams(model, messages, opts)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	observability.FromContext(ctx).Debug("calling chat completions streaming API",
		observability.String("provider", a.name),
		observability.String("model", model))

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	chunks := make(chan domain.StreamChunk)

	go func() {
		defer cancel()
		defer close(chunks)
		defer stream.Close()

		var content strings.Builder
		var usage *domain.Usage

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = toUsage(chunk.Usage)
			}
			if chunk.Model != "" {
				model = chunk.Model
			}

			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			delta := chunk.Choices[0].Delta.Content
			content.WriteString(delta)
			if !send(ctx, chunks, domain.DeltaChunk(delta)) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, chunks, domain.ErrorChunk(a.wrap(ctx, opStream, err)))
			return
		}

		final := domain.FinalChunk(content.String(), usage)
		final.Provider = a.name
		final.Model = model
		send(ctx, chunks, final)
	}()

	return chunks, nil
}

// wrap categorizes an SDK error and attaches the provider identity.
func (a *Adapter) wrap(ctx context.Context, operation string, err error) error {
	var apiErr *openai.Error
	var netErr net.Error

	var cause error
	switch {
	case errors.As(err, &apiErr):
		code := domain.CodeForStatus(apiErr.StatusCode)
		cause = domain.WrapError(code, fmt.Sprintf("upstream status %d", apiErr.StatusCode), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		cause = err
	case errors.As(err, &netErr) && netErr.Timeout():
		cause = domain.WrapError(domain.CodeTimeout, "upstream timeout", err)
	default:
		cause = domain.WrapError(domain.CodeNetwork, "upstream request failed", err)
	}

	wrapped := domain.NewProviderError(a.name, operation, cause)
	observability.FromContext(ctx).Warn("provider call failed",
		observability.String("provider", a.name),
		observability.String("operation", operation),
		observability.String("code", string(wrapped.Code)),
		observability.Error(err))

	return wrapped
}

func send(ctx context.Context, out chan<- domain.StreamChunk, chunk domain.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func toParams(
	model string,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toMessages(messages),
	}

	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}

	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	if opts.ResponseFormat == domain.ResponseFormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params
}

func toMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Text()))
		default:
			if !msg.HasImages() {
				out = append(out, openai.UserMessage(msg.Text()))
				continue
			}
			out = append(out, openai.UserMessage(toContentParts(msg)))
		}
	}

	return out
}

func toContentParts(msg domain.ChatMessage) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts)+1)

	if msg.Content != "" {
		parts = append(parts, openai.TextContentPart(msg.Content))
	}

	for _, p := range msg.Parts {
		switch p.Type {
		case domain.PartImage:
			url := p.URL
			if p.Data != "" {
				url = fmt.Sprintf("data:%s;base64,%s", p.MimeType, p.Data)
			}
			if url == "" {
				continue
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: url,
			}))
		default:
			if p.Text != "" {
				parts = append(parts, openai.TextContentPart(p.Text))
			}
		}
	}

	return parts
}

func toUsage(u openai.CompletionUsage) *domain.Usage {
	if u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}

	return &domain.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}
