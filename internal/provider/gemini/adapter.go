// Package gemini provides the Google Gemini adapter over the Generative
// Language REST API. Non-streaming calls use generateContent; streaming
// calls use streamGenerateContent with alt=sse.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

const (
	providerName = "gemini"
	opComplete   = "chatCompletion"
	opStream     = "chatCompletionStream"

	maxErrorBody = 64 << 10
)

// Provider implements domain.Adapter and domain.Streamer for Gemini.
type Provider struct {
	config     Config
	timeout    time.Duration
	httpClient *http.Client
}

// NewProvider creates a new Gemini provider.
func NewProvider(config Config) *Provider {
	return NewProviderWithClient(config, &http.Client{})
}

// NewProviderWithClient creates a provider that sends requests through client.
func NewProviderWithClient(config Config, client *http.Client) *Provider {
	return &Provider{
		config:     config,
		timeout:    time.Duration(config.Timeout) * time.Second,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Available reports whether an API key is configured.
func (p *Provider) Available() bool {
	return p.config.APIKey != ""
}

// Complete sends a generateContent request and returns the full answer.
func (p *Provider) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = p.timeout
	}
	ctx, cancel := opts.WithTimeout(ctx)
	defer cancel()

	model := p.config.selectModel(messages, opts)
	logger := observability.FromContext(ctx).With(
		observability.String("provider", providerName),
		observability.String("model", model),
	)
	logger.Debug("calling Gemini generateContent")

	resp, err := p.post(ctx, model+":generateContent", toRequest(messages, opts))
	if err != nil {
		return nil, p.wrap(ctx, opComplete, err)
	}
	defer resp.Body.Close()

	var body generateContentResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
		return nil, p.wrap(ctx, opComplete, domain.WrapError(domain.CodeParse, "decode response", decodeErr))
	}

	if err := blocked(body); err != nil {
		return nil, p.wrap(ctx, opComplete, err)
	}

	text := body.text()
	if text == "" {
		return nil, p.wrap(ctx, opComplete, domain.NewError(domain.CodeParse, "empty completion"))
	}

	if body.ModelVersion != "" {
		model = body.ModelVersion
	}

	return &domain.CompletionResult{
		Content:  text,
		Provider: providerName,
		Model:    model,
		Usage:    body.usage(),
	}, nil
}

// post sends a JSON request to a model method and returns a 200 response.
// Other statuses are converted to categorized errors.
func (p *Provider) post(ctx context.Context, method string, payload any) (*http.Response, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(p.config.BaseURL, "/"), method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := fmt.Sprintf("upstream status %d", resp.StatusCode)
	var body errorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		message = fmt.Sprintf("%s: %s", message, body.Error.Message)
	}

	return domain.NewError(domain.CodeForStatus(resp.StatusCode), message)
}

func blocked(body generateContentResponse) error {
	if body.PromptFeedback != nil && body.PromptFeedback.BlockReason != "" {
		return domain.NewError(domain.CodeValidation, "prompt blocked: "+body.PromptFeedback.BlockReason)
	}
	return nil
}

// wrap categorizes a failure and attaches the provider identity.
func (p *Provider) wrap(ctx context.Context, operation string, err error) error {
	var categorized *domain.Error
	var netErr net.Error

	cause := err
	switch {
	case errors.As(err, &categorized):
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
	case errors.As(err, &netErr) && netErr.Timeout():
		cause = domain.WrapError(domain.CodeTimeout, "upstream timeout", err)
	default:
		cause = domain.WrapError(domain.CodeNetwork, "upstream request failed", err)
	}

	wrapped := domain.NewProviderError(providerName, operation, cause)
	observability.FromContext(ctx).Warn("provider call failed",
		observability.String("provider", providerName),
		observability.String("operation", operation),
		observability.String("code", string(wrapped.Code)),
		observability.Error(err))

	return wrapped
}
