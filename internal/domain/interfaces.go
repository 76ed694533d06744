package domain

import (
	"context"
	"time"
)

// Adapter represents one LLM provider behind the shared completion contract.
type Adapter interface {
	// Name returns the provider identifier.
	Name() string

	// Available reports whether the credentials the adapter needs are present.
	Available() bool

	// Complete sends a completion request and returns the full answer.
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (*CompletionResult, error)
}

// Streamer is implemented by adapters with native streaming support.
// Adapters without it get the default in StreamCompletion.
type Streamer interface {
	// Stream sends a completion request and returns a channel of chunks.
	// The channel is closed after a terminal chunk or on cancellation.
	Stream(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (<-chan StreamChunk, error)
}

// ChatRepository persists chats and their messages.
type ChatRepository interface {
	CreateChat(ctx context.Context, userID string) (*Chat, error)

	// GetChat returns ErrChatNotFound when the chat does not exist or belongs to another user.
	GetChat(ctx context.Context, userID, chatID string) (*Chat, error)

	ListMessages(ctx context.Context, chatID string) ([]StoredMessage, error)
	InsertMessage(ctx context.Context, msg *StoredMessage) error
	LinkAttachments(ctx context.Context, messageID string, attachmentIDs []string) error
	TouchChat(ctx context.Context, chatID string, at time.Time) error
	UpdateTitle(ctx context.Context, chatID, title string) error
}

// AttachmentResolver turns an attachment id into provider-consumable content.
type AttachmentResolver interface {
	Resolve(ctx context.Context, userID, attachmentID string) (ContentPart, error)
}

// QuotaLimiter enforces a per-user daily request quota.
type QuotaLimiter interface {
	// CheckDailyLimit counts one request and returns a RATE_LIMIT error when over quota.
	CheckDailyLimit(ctx context.Context, userID string) error
}

// TitleTrigger starts chat title generation without blocking the caller.
type TitleTrigger interface {
	Trigger(userID, chatID, firstMessage string)
}
