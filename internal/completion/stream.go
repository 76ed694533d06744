package completion

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/studygate/internal/attachment"
	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/observability"
	"github.com/davidbz/studygate/internal/protocol"
)

// StreamRequest is one inbound streaming chat turn.
type StreamRequest struct {
	ChatID        string                   `json:"chatId,omitempty"`
	Message       string                   `json:"message"`
	AttachmentIDs []string                 `json:"attachmentIds,omitempty"`
	RequestID     string                   `json:"requestId,omitempty"`
	Regenerate    bool                     `json:"regenerate,omitempty"`
	Options       domain.CompletionOptions `json:"options"`
}

func (r StreamRequest) validate() error {
	if r.Regenerate {
		if r.ChatID == "" {
			return domain.NewError(domain.CodeValidation, "regenerate requires a chatId")
		}
		return nil
	}

	if strings.TrimSpace(r.Message) == "" && len(r.AttachmentIDs) == 0 {
		return domain.NewError(domain.CodeValidation, "message is required")
	}
	return nil
}

// turn holds what the service prepared before streaming starts.
type turn struct {
	chat         *domain.Chat
	messages     []domain.ChatMessage
	firstMessage string
	firstTurn    bool
}

// Stream runs one chat turn and writes its events to w.
//
// An error returned before the meta event is written means nothing reached w
// and the caller should answer with an HTTP status. Later errors have already
// been written as an error event, except on cancellation, where nothing more
// is written.
func (s *Service) Stream(ctx context.Context, req StreamRequest, w EventWriter) error {
	userID, err := s.admit(ctx)
	if err != nil {
		return err
	}
	ctx = observability.WithUserID(ctx, userID)

	if err = req.validate(); err != nil {
		return err
	}

	t, err := s.prepare(ctx, userID, req)
	if err != nil {
		return err
	}
	ctx = observability.WithChatID(ctx, t.chat.ID)

	messageID := uuid.NewString()
	requestID := req.RequestID
	if requestID == "" {
		requestID = observability.GetRequestID(ctx)
	}

	if err = w.Encode(protocol.MetaEvent(protocol.Meta{
		ChatID:    t.chat.ID,
		MessageID: messageID,
		RequestID: requestID,
	})); err != nil {
		return domain.WrapError(domain.CodeAborted, "write meta event", err)
	}

	done := observability.StreamStarted()
	defer done()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	final, err := s.relay(streamCtx, s.chain.Stream(streamCtx, t.messages, s.options(req.Options)), w)
	if err != nil {
		return err
	}

	s.finish(ctx, userID, messageID, t, final)

	if err = w.Encode(protocol.DoneEvent()); err != nil {
		return domain.WrapError(domain.CodeAborted, "write done event", err)
	}
	return nil
}

// prepare resolves the chat, attachments and history and stores the user message.
func (s *Service) prepare(ctx context.Context, userID string, req StreamRequest) (*turn, error) {
	var chat *domain.Chat
	var err error

	if req.ChatID != "" {
		chat, err = s.repo.GetChat(ctx, userID, req.ChatID)
	} else {
		chat, err = s.repo.CreateChat(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	history := domain.ToChatMessages(stored)
	t := &turn{chat: chat, firstTurn: !hasAssistant(history)}

	var parts []domain.ContentPart
	var resolved []string
	if s.resolver != nil && len(req.AttachmentIDs) > 0 {
		parts, resolved = attachment.ResolveAll(ctx, s.resolver, userID, req.AttachmentIDs)
	}

	if req.Regenerate {
		for len(history) > 0 && history[len(history)-1].Role == domain.RoleAssistant {
			history = history[:len(history)-1]
		}
		if len(history) == 0 || history[len(history)-1].Role != domain.RoleUser {
			return nil, domain.NewError(domain.CodeValidation, "nothing to regenerate")
		}
		history[len(history)-1].Parts = parts
		t.firstMessage = history[len(history)-1].Content
		t.firstTurn = !hasAssistant(history)
	} else {
		msg := &domain.StoredMessage{ChatID: chat.ID, Role: domain.RoleUser, Content: req.Message}
		if err = s.repo.InsertMessage(ctx, msg); err != nil {
			return nil, err
		}
		if len(resolved) > 0 {
			if err = s.repo.LinkAttachments(ctx, msg.ID, resolved); err != nil {
				return nil, err
			}
		}
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: req.Message, Parts: parts})
		t.firstMessage = req.Message
	}

	if limit := s.config.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	t.messages = history
	if s.config.SystemPrompt != "" {
		t.messages = append([]domain.ChatMessage{{Role: domain.RoleSystem, Content: s.config.SystemPrompt}}, history...)
	}

	return t, nil
}

// relay re-encodes chunks as events until a terminal chunk arrives and returns
// the final chunk with its content resolved.
func (s *Service) relay(ctx context.Context, chunks <-chan domain.StreamChunk, w EventWriter) (domain.StreamChunk, error) {
	logger := observability.FromContext(ctx)

	var answer strings.Builder
	keepAlive := time.NewTicker(s.keepAlive())
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stream canceled by caller")
			return domain.StreamChunk{}, domain.WrapError(domain.CodeAborted, "stream canceled", ctx.Err())

		case <-keepAlive.C:
			if err := w.Comment("keep-alive"); err != nil {
				return domain.StreamChunk{}, domain.WrapError(domain.CodeAborted, "write keep-alive", err)
			}

		case chunk, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return domain.StreamChunk{}, domain.WrapError(domain.CodeAborted, "stream canceled", ctx.Err())
				}
				err := domain.NewError(domain.CodeInternal, "provider stream closed without a result")
				_ = w.Encode(protocol.ErrorEvent(err))
				return domain.StreamChunk{}, err
			}

			switch chunk.Type {
			case domain.ChunkDelta:
				answer.WriteString(chunk.Content)
				if err := w.Encode(protocol.DeltaEvent(chunk.Content)); err != nil {
					return domain.StreamChunk{}, domain.WrapError(domain.CodeAborted, "write delta event", err)
				}

			case domain.ChunkFinal:
				if chunk.Content == "" {
					chunk.Content = answer.String()
				}
				if err := w.Encode(protocol.FinalEvent(chunk.Content, chunk.Usage)); err != nil {
					return domain.StreamChunk{}, domain.WrapError(domain.CodeAborted, "write final event", err)
				}
				return chunk, nil

			case domain.ChunkError:
				var err error = domain.NewError(domain.CodeProvider, "unknown stream error")
				if chunk.Err != nil {
					err = chunk.Err
				}
				logger.Warn("stream failed", observability.Error(err))
				if writeErr := w.Encode(protocol.ErrorEvent(err)); writeErr != nil {
					logger.Debug("failed to write error event", observability.Error(writeErr))
				}
				return domain.StreamChunk{}, err
			}
		}
	}
}

// finish stores the answer, touches the chat and triggers titling.
// Nothing is stored once the caller has gone away.
func (s *Service) finish(ctx context.Context, userID, messageID string, t *turn, final domain.StreamChunk) {
	s.account(ctx, final.Provider, final.Model, final.Usage)

	if ctx.Err() != nil {
		return
	}

	logger := observability.FromContext(ctx)

	msg := &domain.StoredMessage{
		ID:       messageID,
		ChatID:   t.chat.ID,
		Role:     domain.RoleAssistant,
		Content:  final.Content,
		Provider: final.Provider,
		Model:    final.Model,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		logger.Error("failed to store assistant message", observability.Error(err))
		return
	}

	if err := s.repo.TouchChat(ctx, t.chat.ID, time.Now().UTC()); err != nil {
		logger.Warn("failed to update chat activity", observability.Error(err))
	}

	if t.firstTurn && t.chat.Title == "" && s.titles != nil {
		s.titles.Trigger(userID, t.chat.ID, t.firstMessage)
	}
}

func (s *Service) keepAlive() time.Duration {
	if s.config.KeepAlive <= 0 {
		return 15 * time.Second
	}
	return s.config.KeepAlive
}

func hasAssistant(messages []domain.ChatMessage) bool {
	for _, m := range messages {
		if m.Role == domain.RoleAssistant {
			return true
		}
	}
	return false
}
