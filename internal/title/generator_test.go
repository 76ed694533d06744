package title_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/title"
)

type fakeCompleter struct {
	content string
	err     error
	calls   int
	mu      sync.Mutex
}

func (f *fakeCompleter) Complete(
	_ context.Context,
	messages []domain.ChatMessage,
	_ domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if len(messages) != 2 || messages[0].Role != domain.RoleSystem {
		return nil, errors.New("unexpected prompt")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CompletionResult{Content: f.content}, nil
}

type fakeUpdater struct {
	mu     sync.Mutex
	titles map[string]string
}

func (f *fakeUpdater) UpdateTitle(_ context.Context, chatID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.titles == nil {
		f.titles = map[string]string{}
	}
	f.titles[chatID] = title
	return nil
}

func config() title.Config {
	return title.Config{Enabled: true, Timeout: time.Second, MaxLength: 20}
}

func TestGenerator_Generate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		err      error
		message  string
		expected string
	}{
		{name: "model title", content: "Cell Respiration", message: "hi", expected: "Cell Respiration"},
		{name: "title at the length limit", content: "Osmosis and Membrane", message: "hi", expected: "Osmosis and Membrane"},
		{name: "quoted with prefix", content: "Title: \"Photosynthesis.\"\nextra", message: "hi", expected: "Photosynthesis"},
		{name: "long title shortened", content: "The Complete History of the Roman Empire", message: "hi", expected: "The Complete…"},
		{name: "model failure", err: domain.NewError(domain.CodeTimeout, "slow"), message: "What is osmosis?", expected: "What is osmosis?"},
		{name: "empty answer", content: "  ", message: "Explain mitosis", expected: "Explain mitosis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := title.NewGenerator(&fakeCompleter{content: tt.content, err: tt.err}, &fakeUpdater{}, config())

			require.Equal(t, tt.expected, gen.Generate(context.Background(), tt.message))
		})
	}
}

func TestGenerator_Trigger(t *testing.T) {
	t.Run("should store the title in the background", func(t *testing.T) {
		updater := &fakeUpdater{}
		gen := title.NewGenerator(&fakeCompleter{content: "Genetics"}, updater, config())

		gen.Trigger("u1", "c1", "Tell me about genes")
		gen.Wait()

		require.Equal(t, "Genetics", updater.titles["c1"])
	})

	t.Run("should do nothing when disabled", func(t *testing.T) {
		completer := &fakeCompleter{content: "Genetics"}
		updater := &fakeUpdater{}
		cfg := config()
		cfg.Enabled = false
		gen := title.NewGenerator(completer, updater, cfg)

		gen.Trigger("u1", "c1", "Tell me about genes")
		gen.Wait()

		require.Zero(t, completer.calls)
		require.Empty(t, updater.titles)
	})
}
