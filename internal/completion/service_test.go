package completion_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/studygate/internal/attachment"
	"github.com/davidbz/studygate/internal/auth"
	"github.com/davidbz/studygate/internal/completion"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/protocol"
	"github.com/davidbz/studygate/internal/quota"
	"github.com/davidbz/studygate/internal/storage/memory"
)

type fakeChain struct {
	chunks []domain.StreamChunk
	block  bool
	delay  time.Duration
	result *domain.CompletionResult
	err    error

	mu       sync.Mutex
	received [][]domain.ChatMessage
}

func (f *fakeChain) record(messages []domain.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, messages)
}

func (f *fakeChain) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *fakeChain) Complete(
	_ context.Context,
	messages []domain.ChatMessage,
	_ domain.CompletionOptions,
) (*domain.CompletionResult, error) {
	f.record(messages)
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	return &result, nil
}

func (f *fakeChain) Stream(
	ctx context.Context,
	messages []domain.ChatMessage,
	_ domain.CompletionOptions,
) <-chan domain.StreamChunk {
	f.record(messages)

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return
			}
		}

		for _, c := range f.chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}

		if f.block {
			<-ctx.Done()
		}
	}()
	return out
}

type fakeTitles struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTitles) Trigger(_, _, firstMessage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, firstMessage)
}

type fixture struct {
	store   *memory.Store
	chain   *fakeChain
	titles  *fakeTitles
	service *completion.Service
}

func newFixture(chain *fakeChain, dailyLimit int) *fixture {
	store := memory.NewStore()
	titles := &fakeTitles{}

	service := completion.NewService(
		chain,
		store,
		attachment.NewResolver(store, attachment.Config{}),
		quota.NewMemoryLimiter(dailyLimit),
		titles,
		domain.NewStandardCostCalculator(domain.NewInMemoryPricingRegistry()),
		completion.Config{SystemPrompt: "Be helpful.", KeepAlive: time.Minute, HistoryLimit: 10},
	)

	return &fixture{store: store, chain: chain, titles: titles, service: service}
}

func userContext(userID string) context.Context {
	return auth.SetIdentity(context.Background(), &auth.Identity{Subject: userID})
}

func decode(t *testing.T, buf *bytes.Buffer) []protocol.Event {
	t.Helper()
	events, err := protocol.DecodeAll(buf)
	require.NoError(t, err)
	return events
}

func types(events []protocol.Event) []protocol.EventType {
	out := make([]protocol.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

var helloChunks = []domain.StreamChunk{
	domain.DeltaChunk("Hello "),
	domain.DeltaChunk("World"),
	{Type: domain.ChunkFinal, Usage: &domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, Provider: "groq", Model: "llama"},
}

func TestService_Stream(t *testing.T) {
	t.Run("should emit the full event sequence and persist the exchange", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 10)
		var buf bytes.Buffer

		err := f.service.Stream(userContext("u1"), completion.StreamRequest{Message: "Hi there", RequestID: "r1"}, protocol.NewEncoder(&buf))
		require.NoError(t, err)

		events := decode(t, &buf)
		require.Equal(t, []protocol.EventType{
			protocol.EventMeta, protocol.EventDelta, protocol.EventDelta, protocol.EventFinal, protocol.EventDone,
		}, types(events))

		meta := events[0].Meta
		require.Equal(t, "r1", meta.RequestID)
		require.NotEmpty(t, meta.ChatID)
		require.NotEmpty(t, meta.MessageID)

		require.Equal(t, "Hello World", events[3].Content)
		require.Equal(t, 5, events[3].Usage.TotalTokens)

		stored, err := f.store.ListMessages(context.Background(), meta.ChatID)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		require.Equal(t, domain.RoleUser, stored[0].Role)
		require.Equal(t, "Hi there", stored[0].Content)
		require.Equal(t, meta.MessageID, stored[1].ID)
		require.Equal(t, "Hello World", stored[1].Content)
		require.Equal(t, "groq", stored[1].Provider)

		require.Equal(t, []string{"Hi there"}, f.titles.calls)

		sent := f.chain.received[0]
		require.Equal(t, domain.RoleSystem, sent[0].Role)
		require.Equal(t, "Hi there", sent[len(sent)-1].Content)
	})

	t.Run("should prefer the final chunk's own content", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: []domain.StreamChunk{
			domain.DeltaChunk("raw"),
			domain.FinalChunk("polished", nil),
		}}, 10)
		var buf bytes.Buffer

		require.NoError(t, f.service.Stream(userContext("u1"), completion.StreamRequest{Message: "q"}, protocol.NewEncoder(&buf)))

		events := decode(t, &buf)
		require.Equal(t, "polished", events[2].Content)
		require.Nil(t, events[2].Usage)
	})

	t.Run("should continue an existing chat without retitling", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 10)
		ctx := userContext("u1")

		var first bytes.Buffer
		require.NoError(t, f.service.Stream(ctx, completion.StreamRequest{Message: "one"}, protocol.NewEncoder(&first)))
		chatID := decode(t, &first)[0].Meta.ChatID

		var second bytes.Buffer
		require.NoError(t, f.service.Stream(ctx, completion.StreamRequest{ChatID: chatID, Message: "two"}, protocol.NewEncoder(&second)))
		require.Equal(t, chatID, decode(t, &second)[0].Meta.ChatID)

		sent := f.chain.received[1]
		require.Len(t, sent, 4)
		require.Equal(t, "two", sent[3].Content)
		require.Len(t, f.titles.calls, 1)
	})

	t.Run("should fail before writing without an identity", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 10)
		var buf bytes.Buffer

		err := f.service.Stream(context.Background(), completion.StreamRequest{Message: "q"}, protocol.NewEncoder(&buf))

		require.Equal(t, domain.CodeInternal, domain.CodeOf(err))
		require.Equal(t, 500, domain.HTTPStatus(domain.CodeOf(err)))
		require.Zero(t, buf.Len())
		require.Zero(t, f.chain.calls())
	})

	t.Run("should reject over-quota callers before any work", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 1)
		ctx := userContext("u1")

		require.NoError(t, f.service.Stream(ctx, completion.StreamRequest{Message: "q"}, protocol.NewEncoder(&bytes.Buffer{})))

		var buf bytes.Buffer
		err := f.service.Stream(ctx, completion.StreamRequest{Message: "q"}, protocol.NewEncoder(&buf))

		require.Equal(t, domain.CodeRateLimit, domain.CodeOf(err))
		require.Equal(t, 429, domain.HTTPStatus(domain.CodeOf(err)))
		require.Zero(t, buf.Len())
		require.Equal(t, 1, f.chain.calls())
	})

	t.Run("should reject unknown chats and empty messages", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 10)
		var buf bytes.Buffer

		err := f.service.Stream(userContext("u1"), completion.StreamRequest{ChatID: "missing", Message: "q"}, protocol.NewEncoder(&buf))
		require.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

		err = f.service.Stream(userContext("u1"), completion.StreamRequest{Message: "  "}, protocol.NewEncoder(&buf))
		require.Equal(t, domain.CodeValidation, domain.CodeOf(err))
		require.Zero(t, buf.Len())
	})

	t.Run("should end with an error event after partial output", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: []domain.StreamChunk{
			domain.DeltaChunk("partial"),
			domain.ErrorChunk(domain.NewError(domain.CodeNetwork, "reset")),
		}}, 10)
		var buf bytes.Buffer

		err := f.service.Stream(userContext("u1"), completion.StreamRequest{Message: "q"}, protocol.NewEncoder(&buf))
		require.Equal(t, domain.CodeNetwork, domain.CodeOf(err))

		events := decode(t, &buf)
		require.Equal(t, []protocol.EventType{protocol.EventMeta, protocol.EventDelta, protocol.EventError}, types(events))
		require.Equal(t, domain.CodeNetwork, events[2].Error.Code)
		require.True(t, events[2].Error.Retryable)

		stored, listErr := f.store.ListMessages(context.Background(), events[0].Meta.ChatID)
		require.NoError(t, listErr)
		require.Len(t, stored, 1)
		require.Empty(t, f.titles.calls)
	})

	t.Run("should regenerate without storing a new user message", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 10)
		ctx := userContext("u1")

		var first bytes.Buffer
		require.NoError(t, f.service.Stream(ctx, completion.StreamRequest{Message: "explain DNA"}, protocol.NewEncoder(&first)))
		chatID := decode(t, &first)[0].Meta.ChatID

		var second bytes.Buffer
		require.NoError(t, f.service.Stream(ctx, completion.StreamRequest{ChatID: chatID, Regenerate: true}, protocol.NewEncoder(&second)))

		sent := f.chain.received[1]
		require.Equal(t, domain.RoleUser, sent[len(sent)-1].Role)
		require.Equal(t, "explain DNA", sent[len(sent)-1].Content)

		stored, err := f.store.ListMessages(context.Background(), chatID)
		require.NoError(t, err)
		require.Len(t, stored, 3)
		require.Equal(t, domain.RoleUser, stored[0].Role)
		require.Equal(t, domain.RoleAssistant, stored[1].Role)
		require.Equal(t, domain.RoleAssistant, stored[2].Role)
	})

	t.Run("should resolve attachments and link the ones that succeeded", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: helloChunks}, 10)
		ctx := userContext("u1")

		image := &domain.Attachment{UserID: "u1", FileName: "leaf.png", MimeType: "image/png", Data: []byte("png")}
		require.NoError(t, f.store.SaveAttachment(ctx, image))

		var buf bytes.Buffer
		require.NoError(t, f.service.Stream(ctx, completion.StreamRequest{
			Message:       "what is this?",
			AttachmentIDs: []string{image.ID, "missing"},
		}, protocol.NewEncoder(&buf)))

		sent := f.chain.received[0]
		last := sent[len(sent)-1]
		require.Len(t, last.Parts, 1)
		require.Equal(t, domain.PartImage, last.Parts[0].Type)

		stored, err := f.store.ListMessages(ctx, decode(t, &buf)[0].Meta.ChatID)
		require.NoError(t, err)
		require.Equal(t, []string{image.ID}, f.store.LinkedAttachments(stored[0].ID))
	})

	t.Run("should stop silently when the caller cancels", func(t *testing.T) {
		f := newFixture(&fakeChain{chunks: []domain.StreamChunk{domain.DeltaChunk("a")}, block: true}, 10)
		ctx, cancel := context.WithCancel(userContext("u1"))
		defer cancel()

		var buf bytes.Buffer
		w := cancelingWriter{Encoder: protocol.NewEncoder(&buf), cancel: cancel}

		err := f.service.Stream(ctx, completion.StreamRequest{Message: "q"}, w)
		require.Equal(t, domain.CodeAborted, domain.CodeOf(err))

		events := decode(t, &buf)
		require.Equal(t, []protocol.EventType{protocol.EventMeta, protocol.EventDelta}, types(events))

		stored, listErr := f.store.ListMessages(context.Background(), events[0].Meta.ChatID)
		require.NoError(t, listErr)
		require.Len(t, stored, 1)
	})

	t.Run("should send keep-alive comments while waiting", func(t *testing.T) {
		chain := &fakeChain{chunks: helloChunks, delay: 60 * time.Millisecond}
		store := memory.NewStore()
		service := completion.NewService(chain, store, attachment.NewResolver(store, attachment.Config{}),
			quota.NewMemoryLimiter(0), &fakeTitles{},
			domain.NewStandardCostCalculator(domain.NewInMemoryPricingRegistry()),
			completion.Config{KeepAlive: 10 * time.Millisecond})

		var buf bytes.Buffer
		require.NoError(t, service.Stream(userContext("u1"), completion.StreamRequest{Message: "q"}, protocol.NewEncoder(&buf)))

		require.Contains(t, buf.String(), ": keep-alive\n\n")
		require.Len(t, decode(t, &buf), 5)
	})
}

type cancelingWriter struct {
	*protocol.Encoder
	cancel context.CancelFunc
}

func (w cancelingWriter) Encode(event protocol.Event) error {
	err := w.Encoder.Encode(event)
	if event.Type == protocol.EventDelta {
		w.cancel()
	}
	return err
}

func TestService_Complete(t *testing.T) {
	messages := []domain.ChatMessage{{Role: domain.RoleUser, Content: "List two organelles as JSON"}}

	t.Run("should return the chain result", func(t *testing.T) {
		f := newFixture(&fakeChain{result: &domain.CompletionResult{Content: "ok", Provider: "gemini"}}, 10)

		result, err := f.service.Complete(userContext("u1"), messages, domain.CompletionOptions{})
		require.NoError(t, err)
		require.Equal(t, "ok", result.Content)
	})

	t.Run("should repair malformed JSON answers", func(t *testing.T) {
		f := newFixture(&fakeChain{result: &domain.CompletionResult{Content: `{"organelles": ["nucleus", "ribosome",]}`}}, 10)

		result, err := f.service.Complete(userContext("u1"), messages,
			domain.CompletionOptions{ResponseFormat: domain.ResponseFormatJSON})
		require.NoError(t, err)
		require.JSONEq(t, `{"organelles":["nucleus","ribosome"]}`, result.Content)
	})

	t.Run("should leave text answers untouched", func(t *testing.T) {
		f := newFixture(&fakeChain{result: &domain.CompletionResult{Content: `{"a":1,}`}}, 10)

		result, err := f.service.Complete(userContext("u1"), messages, domain.CompletionOptions{})
		require.NoError(t, err)
		require.Equal(t, `{"a":1,}`, result.Content)
	})

	t.Run("should require identity and a user message", func(t *testing.T) {
		f := newFixture(&fakeChain{result: &domain.CompletionResult{Content: "ok"}}, 10)

		_, err := f.service.Complete(context.Background(), messages, domain.CompletionOptions{})
		require.Equal(t, domain.CodeInternal, domain.CodeOf(err))

		_, err = f.service.Complete(userContext("u1"),
			[]domain.ChatMessage{{Role: domain.RoleSystem, Content: "x"}}, domain.CompletionOptions{})
		require.Equal(t, domain.CodeValidation, domain.CodeOf(err))
		require.Zero(t, f.chain.calls())
	})

	t.Run("should surface chain failures", func(t *testing.T) {
		f := newFixture(&fakeChain{err: domain.ErrNoProviders}, 10)

		_, err := f.service.Complete(userContext("u1"), messages, domain.CompletionOptions{})
		require.ErrorIs(t, err, domain.ErrNoProviders)
	})
}
