// Package completion orchestrates one chat turn: quota, chat persistence,
// attachment resolution and the provider chain, for streaming and
// non-streaming callers.
package completion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/davidbz/studygate/internal/auth"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
	"github.com/davidbz/studygate/internal/protocol"
)

// Config contains completion settings.
type Config struct {
	SystemPrompt string        `env:"COMPLETION_SYSTEM_PROMPT" envDefault:"You are a patient study assistant. Explain clearly and check understanding."`
	KeepAlive    time.Duration `env:"COMPLETION_KEEP_ALIVE"    envDefault:"15s"`
	HistoryLimit int           `env:"COMPLETION_HISTORY_LIMIT" envDefault:"40"`
	Timeout      time.Duration `env:"COMPLETION_TIMEOUT"       envDefault:"120s"`
}

// Chain is the provider fallback chain.
type Chain interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (*domain.CompletionResult, error)
	Stream(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) <-chan domain.StreamChunk
}

// EventWriter receives the events of one stream.
type EventWriter interface {
	Encode(event protocol.Event) error
	Comment(text string) error
}

// Service runs completions on behalf of authenticated callers.
type Service struct {
	chain    Chain
	repo     domain.ChatRepository
	resolver domain.AttachmentResolver
	limiter  domain.QuotaLimiter
	titles   domain.TitleTrigger
	costs    domain.CostCalculator
	config   Config
}

// NewService creates a completion service.
func NewService(
	chain Chain,
	repo domain.ChatRepository,
	resolver domain.AttachmentResolver,
	limiter domain.QuotaLimiter,
	titles domain.TitleTrigger,
	costs domain.CostCalculator,
	config Config,
) *Service {
	return &Service{
		chain:    chain,
		repo:     repo,
		resolver: resolver,
		limiter:  limiter,
		titles:   titles,
		costs:    costs,
		config:   config,
	}
}

// Complete answers messages without persistence. JSON answers that do not
// parse are repaired before they are returned.
func (s *Service) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	userID, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}
	ctx = observability.WithUserID(ctx, userID)

	if len(messages) == 0 {
		return nil, domain.NewError(domain.CodeValidation, "messages are required")
	}
	if _, ok := domain.LatestUserMessage(messages); !ok {
		return nil, domain.NewError(domain.CodeValidation, "a user message is required")
	}

	result, err := s.chain.Complete(ctx, messages, s.options(opts))
	if err != nil {
		return nil, err
	}

	if opts.ResponseFormat == domain.ResponseFormatJSON && !json.Valid([]byte(result.Content)) {
		repaired, repairErr := jsonrepair.JSONRepair(result.Content)
		if repairErr != nil {
			return nil, domain.WrapError(domain.CodeParse, "model returned invalid JSON", repairErr)
		}
		observability.FromContext(ctx).Debug("repaired JSON answer", observability.String("provider", result.Provider))
		result.Content = repaired
	}

	s.account(ctx, result.Provider, result.Model, result.Usage)
	return result, nil
}

// admit checks the caller identity and the daily quota.
func (s *Service) admit(ctx context.Context) (string, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return "", domain.NewError(domain.CodeInternal, "request reached the completion service without an identity")
	}

	if err := s.limiter.CheckDailyLimit(ctx, userID); err != nil {
		return "", err
	}

	return userID, nil
}

func (s *Service) options(opts domain.CompletionOptions) domain.CompletionOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = s.config.Timeout
	}
	return opts
}

// account logs usage and records token and cost metrics.
func (s *Service) account(ctx context.Context, provider, model string, usage *domain.Usage) {
	if usage == nil {
		return
	}

	cost, err := s.costs.Calculate(ctx, model, *usage)
	if err != nil {
		observability.FromContext(ctx).Warn("failed to calculate cost", observability.Error(err))
	}

	observability.ObserveCompletion(provider, model, usage.PromptTokens, usage.CompletionTokens, cost)
	observability.FromContext(ctx).Info("completion finished",
		observability.String("provider", provider),
		observability.String("model", model),
		observability.Int("total_tokens", usage.TotalTokens),
		observability.Float64("cost_usd", cost))
}
