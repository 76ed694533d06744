// Package title names new chats from their first message without blocking the
// request that created them.
package title

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
)

const titlePrompt = "Write a short title (at most six words) for a study chat that starts with the " +
	"message below. Reply with the title only, no quotes or punctuation at the end."

// Config contains title generation settings.
type Config struct {
	Enabled   bool          `env:"TITLE_ENABLED"    envDefault:"true"`
	Timeout   time.Duration `env:"TITLE_TIMEOUT"    envDefault:"20s"`
	MaxLength int           `env:"TITLE_MAX_LENGTH" envDefault:"60"`
}

// Completer produces one non-streaming answer.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (*domain.CompletionResult, error)
}

// Updater stores a chat title.
type Updater interface {
	UpdateTitle(ctx context.Context, chatID, title string) error
}

// Generator implements domain.TitleTrigger.
type Generator struct {
	completer Completer
	updater   Updater
	config    Config
	wg        sync.WaitGroup
}

// NewGenerator creates a title generator.
func NewGenerator(completer Completer, updater Updater, config Config) *Generator {
	return &Generator{completer: completer, updater: updater, config: config}
}

// Trigger generates and stores the title in the background. The work is
// detached from any request context and bounded by the configured timeout.
func (g *Generator) Trigger(userID, chatID, firstMessage string) {
	if !g.config.Enabled || strings.TrimSpace(firstMessage) == "" {
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx := observability.WithChatID(observability.WithUserID(context.Background(), userID), chatID)
		ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()

		title := g.Generate(ctx, firstMessage)
		if err := g.updater.UpdateTitle(ctx, chatID, title); err != nil {
			observability.FromContext(ctx).Warn("failed to store chat title", observability.Error(err))
			return
		}

		observability.FromContext(ctx).Debug("chat title stored", observability.String("title", title))
	}()
}

// Wait blocks until every triggered generation has finished.
func (g *Generator) Wait() {
	g.wg.Wait()
}

// Generate asks the model for a title, falling back to the start of the message.
func (g *Generator) Generate(ctx context.Context, firstMessage string) string {
	fallback := clean(firstMessage, g.config.MaxLength)

	temperature := 0.2
	result, err := g.completer.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: titlePrompt},
		{Role: domain.RoleUser, Content: firstMessage},
	}, domain.CompletionOptions{Temperature: &temperature, MaxTokens: 32})
	if err != nil {
		observability.FromContext(ctx).Warn("title generation failed, using message prefix",
			observability.String("code", string(domain.CodeOf(err))),
			observability.Error(err))
		return fallback
	}

	if title := clean(result.Content, g.config.MaxLength); title != "" {
		return title
	}
	return fallback
}

// clean keeps the first line, strips quoting and a "Title:" prefix and
// shortens to maxLen runes on a word boundary when possible.
func clean(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if line, _, found := strings.Cut(text, "\n"); found {
		text = strings.TrimSpace(line)
	}

	if rest, found := strings.CutPrefix(strings.ToLower(text), "title:"); found {
		text = strings.TrimSpace(text[len(text)-len(rest):])
	}
	text = strings.Trim(text, "\"'*` ")
	text = strings.TrimRight(text, ".")

	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)[:maxLen]
	short := string(runes)
	if i := strings.LastIndex(short, " "); i > maxLen/2 {
		short = short[:i]
	}
	return strings.TrimSpace(short) + "…"
}
