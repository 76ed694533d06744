package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davidbz/studygate/internal/completion"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
	"github.com/davidbz/studygate/internal/protocol"
)

const maxBodyBytes = 1 << 20

// CompletionService is the part of completion.Service the handlers use.
type CompletionService interface {
	Stream(ctx context.Context, req completion.StreamRequest, w completion.EventWriter) error
	Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (*domain.CompletionResult, error)
}

// ProviderLister reports the configured provider order.
type ProviderLister interface {
	Providers() []string
}

// Handler handles HTTP requests.
type Handler struct {
	service   CompletionService
	providers ProviderLister
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(service CompletionService, providers ProviderLister) *Handler {
	return &Handler{
		service:   service,
		providers: providers,
	}
}

// CompletionRequest is the body of a non-streaming completion.
type CompletionRequest struct {
	Messages []domain.ChatMessage     `json:"messages"`
	Options  domain.CompletionOptions `json:"options"`
}

// HandleStream runs one streaming chat turn over server-sent events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	var req completion.StreamRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		writeError(ctx, w, domain.NewError(domain.CodeInternal, "streaming not supported"))
		return
	}

	// Streams outlive the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("could not clear write deadline", observability.Error(err))
	}

	logger.Info("stream request received",
		observability.String("chat_id", req.ChatID),
		observability.Int("attachments", len(req.AttachmentIDs)),
		observability.Bool("regenerate", req.Regenerate))

	sw := &streamWriter{w: w, enc: protocol.NewEncoder(w)}
	err := h.service.Stream(ctx, req, sw)

	switch {
	case err == nil:
		logger.Info("stream completed")
	case !sw.started:
		writeError(ctx, w, err)
	case domain.CodeOf(err) == domain.CodeAborted:
		logger.Debug("stream closed by caller")
	default:
		logger.Warn("stream ended with error", observability.Error(err))
	}
}

// HandleCompletion answers a completion request with one JSON result.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CompletionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.service.Complete(ctx, req.Messages, req.Options)
	if err != nil {
		observability.FromContext(ctx).Error("completion failed", observability.Error(err))
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"providers": h.providers.Providers(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.WrapError(domain.CodeValidation, fmt.Sprintf("invalid request body: %v", err), err)
	}
	return nil
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	e := domain.AsError(err)

	var maxErr *http.MaxBytesError
	status := domain.HTTPStatus(e.Code)
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
	}

	message := e.Message
	if message == "" {
		message = e.Error()
	}

	writeJSON(ctx, w, status, protocol.ErrorData{
		Code:      e.Code,
		Message:   message,
		Retryable: e.Retryable,
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(ctx).Warn("failed to encode response", observability.Error(err))
	}
}

// streamWriter commits the SSE headers on the first write, so errors raised
// before any event can still be answered with a status code.
type streamWriter struct {
	w       http.ResponseWriter
	enc     *protocol.Encoder
	started bool
}

func (s *streamWriter) start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *streamWriter) Encode(event protocol.Event) error {
	s.start()
	return s.enc.Encode(event)
}

func (s *streamWriter) Comment(text string) error {
	s.start()
	return s.enc.Comment(text)
}
