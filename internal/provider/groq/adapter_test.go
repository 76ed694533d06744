package groq_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/provider/groq"
)

func newTestProvider(t *testing.T, models chan<- string) *groq.Provider {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		models <- req.Model

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"g-1","object":"chat.completion","created":1,"model":%q,`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`, req.Model)
	}))
	t.Cleanup(srv.Close)

	return groq.NewProvider(groq.Config{
		APIKey:           "gsk-test",
		BaseURL:          srv.URL + "/",
		Timeout:          5,
		DefaultModel:     "llama-3.1-8b-instant",
		UpgradedModel:    "llama-3.3-70b-versatile",
		PremiumModel:     "openai/gpt-oss-120b",
		UpgradeThreshold: 1200,
	})
}

func TestProvider_Complete(t *testing.T) {
	t.Run("should report groq as provider", func(t *testing.T) {
		models := make(chan string, 1)
		provider := newTestProvider(t, models)

		result, err := provider.Complete(context.Background(),
			[]domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, domain.CompletionOptions{})

		require.NoError(t, err)
		require.Equal(t, "groq", result.Provider)
		require.Equal(t, "llama-3.1-8b-instant", <-models)
	})

	t.Run("should select model tier from request", func(t *testing.T) {
		long := make([]domain.ChatMessage, 0, 14)
		for range 14 {
			long = append(long, domain.ChatMessage{Role: domain.RoleUser, Content: "more"})
		}

		tests := []struct {
			name     string
			messages []domain.ChatMessage
			opts     domain.CompletionOptions
			expected string
		}{
			{
				name:     "threshold is lower than openai",
				messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: strings.Repeat("x", 1201)}},
				expected: "llama-3.3-70b-versatile",
			},
			{
				name:     "comparison prompt",
				messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "Compare mitosis and meiosis"}},
				expected: "llama-3.3-70b-versatile",
			},
			{
				name:     "long conversation",
				messages: long,
				expected: "llama-3.3-70b-versatile",
			},
			{
				name:     "premium",
				messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
				opts:     domain.CompletionOptions{ForcePremium: true},
				expected: "openai/gpt-oss-120b",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				models := make(chan string, 1)
				provider := newTestProvider(t, models)

				_, err := provider.Complete(context.Background(), tt.messages, tt.opts)
				require.NoError(t, err)
				require.Equal(t, tt.expected, <-models)
			})
		}
	})

	t.Run("should be unavailable without an api key", func(t *testing.T) {
		require.False(t, groq.NewProvider(groq.Config{}).Available())
	})
}
