package http //nolint:testpackage // exercises the unexported stream writer through the handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/studygate/internal/auth"
	"github.com/davidbz/studygate/internal/completion"
	"github.com/davidbz/studygate/internal/config"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/http/middleware"
	"github.com/davidbz/studygate/internal/protocol"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Stream(ctx context.Context, req completion.StreamRequest, w completion.EventWriter) error {
	args := m.Called(ctx, req, w)
	return args.Error(0)
}

func (m *mockService) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	args := m.Called(ctx, messages, opts)
	result, _ := args.Get(0).(*domain.CompletionResult)
	return result, args.Error(1)
}

type staticProviders []string

func (s staticProviders) Providers() []string { return s }

func newHandler(service *mockService) *Handler {
	return NewHandler(service, staticProviders{"gemini", "groq", "openai"})
}

func postJSON(target string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
}

func TestHandleStream(t *testing.T) {
	t.Run("should stream events as server-sent events", func(t *testing.T) {
		service := &mockService{}
		service.On("Stream", mock.Anything, completion.StreamRequest{Message: "hi", RequestID: "r1"}, mock.Anything).
			Run(func(args mock.Arguments) {
				w := args.Get(2).(completion.EventWriter)
				require.NoError(t, w.Encode(protocol.MetaEvent(protocol.Meta{ChatID: "c1", MessageID: "m1", RequestID: "r1"})))
				require.NoError(t, w.Encode(protocol.DeltaEvent("Hi")))
				require.NoError(t, w.Encode(protocol.FinalEvent("Hi", nil)))
				require.NoError(t, w.Encode(protocol.DoneEvent()))
			}).
			Return(nil)

		rec := httptest.NewRecorder()
		newHandler(service).HandleStream(rec, postJSON("/v1/chat/stream", map[string]any{"message": "hi", "requestId": "r1"}))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

		events, err := protocol.DecodeAll(rec.Body)
		require.NoError(t, err)
		require.Len(t, events, 4)
		require.Equal(t, "c1", events[0].Meta.ChatID)
		service.AssertExpectations(t)
	})

	t.Run("should map errors raised before streaming to a status", func(t *testing.T) {
		service := &mockService{}
		service.On("Stream", mock.Anything, mock.Anything, mock.Anything).
			Return(&domain.Error{Code: domain.CodeRateLimit, Message: "daily limit of 1 requests reached"})

		rec := httptest.NewRecorder()
		newHandler(service).HandleStream(rec, postJSON("/v1/chat/stream", map[string]any{"message": "hi"}))

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body protocol.ErrorData
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, domain.CodeRateLimit, body.Code)
		require.Equal(t, "daily limit of 1 requests reached", body.Message)
		require.False(t, body.Retryable)
	})

	t.Run("should keep the status once streaming started", func(t *testing.T) {
		service := &mockService{}
		service.On("Stream", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				w := args.Get(2).(completion.EventWriter)
				require.NoError(t, w.Encode(protocol.MetaEvent(protocol.Meta{ChatID: "c1"})))
				require.NoError(t, w.Encode(protocol.ErrorEvent(domain.NewError(domain.CodeTimeout, "slow"))))
			}).
			Return(domain.NewError(domain.CodeTimeout, "slow"))

		rec := httptest.NewRecorder()
		newHandler(service).HandleStream(rec, postJSON("/v1/chat/stream", map[string]any{"message": "hi"}))

		require.Equal(t, http.StatusOK, rec.Code)
		events, err := protocol.DecodeAll(rec.Body)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, protocol.EventError, events[1].Type)
		require.Equal(t, domain.CodeTimeout, events[1].Error.Code)
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		service := &mockService{}

		rec := httptest.NewRecorder()
		newHandler(service).HandleStream(rec,
			httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader("{nope")))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), `"code":"VALIDATION"`)
		service.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandleCompletion(t *testing.T) {
	messages := []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}

	t.Run("should return the completion as JSON", func(t *testing.T) {
		service := &mockService{}
		service.On("Complete", mock.Anything, messages, domain.CompletionOptions{MaxTokens: 50}).
			Return(&domain.CompletionResult{Content: "hello", Provider: "groq", Model: "llama"}, nil)

		rec := httptest.NewRecorder()
		newHandler(service).HandleCompletion(rec, postJSON("/v1/chat/completions", CompletionRequest{
			Messages: messages,
			Options:  domain.CompletionOptions{MaxTokens: 50},
		}))

		require.Equal(t, http.StatusOK, rec.Code)

		var result domain.CompletionResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		require.Equal(t, "hello", result.Content)
		require.Equal(t, "groq", result.Provider)
	})

	t.Run("should map exhausted providers to bad gateway", func(t *testing.T) {
		service := &mockService{}
		service.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &domain.ExhaustedError{
				Attempted: []string{"gemini"},
				Last:      domain.NewProviderError("gemini", "chatCompletion", domain.NewError(domain.CodeProvider, "503")),
			})

		rec := httptest.NewRecorder()
		newHandler(service).HandleCompletion(rec, postJSON("/v1/chat/completions", CompletionRequest{Messages: messages}))

		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Contains(t, rec.Body.String(), "all providers exhausted")
	})
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler(&mockService{}).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","providers":["gemini","groq","openai"]}`, rec.Body.String())
}

func TestServer_Routes(t *testing.T) {
	const secret = "test-secret"

	service := &mockService{}
	service.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			require.Equal(t, "student-1", auth.UserID(ctx))
		}).
		Return(&domain.CompletionResult{Content: "ok"}, nil)

	authenticator := auth.NewAuthenticator(auth.Config{Secret: secret, Leeway: time.Second})
	server := NewServer(&config.Config{}, newHandler(service),
		middleware.BuildMiddlewareChain(&config.CORSConfig{AllowedOrigins: []string{"*"}}, authenticator))
	routes := server.Routes()

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "student-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	body := CompletionRequest{Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}}

	t.Run("should serve health and metrics without a token", func(t *testing.T) {
		for _, path := range []string{"/health", "/metrics"} {
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rec.Code, path)
		}
	})

	t.Run("should require a token for completions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, postJSON("/v1/chat/completions", body))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	})

	t.Run("should pass the identity to the service", func(t *testing.T) {
		req := postJSON("/v1/chat/completions", body)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Request-Id", "client-req-1")

		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "client-req-1", rec.Header().Get("X-Request-Id"))
		service.AssertNumberOfCalls(t, "Complete", 1)
	})

	t.Run("should reject wrong methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/chat/stream", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)

		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
