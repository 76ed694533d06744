package domain

import (
	"context"
	"strings"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one typed element of a multi-part message.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`

	// Image fields. Data is base64 without a data: prefix.
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ChatMessage represents a chat message. Either Content or Parts is set.
type ChatMessage struct {
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// Text returns the textual content of the message, joining text parts.
func (m ChatMessage) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}

	var b strings.Builder
	if m.Content != "" {
		b.WriteString(m.Content)
	}
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// HasImages reports whether the message carries image parts.
func (m ChatMessage) HasImages() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// LatestUserMessage returns the last user message, if any.
func LatestUserMessage(messages []ChatMessage) (ChatMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i], true
		}
	}
	return ChatMessage{}, false
}

// ResponseFormat requests a particular output shape from the model.
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = ""
	ResponseFormatJSON ResponseFormat = "json"
)

// CompletionOptions carries per-request generation settings.
// Cancellation travels in the context passed alongside the options.
type CompletionOptions struct {
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      int            `json:"maxTokens,omitempty"`
	ResponseFormat ResponseFormat `json:"responseFormat,omitempty"`

	// Model-tier hints.
	ForceUpgrade bool `json:"forceUpgrade,omitempty"`
	ForcePremium bool `json:"forcePremium,omitempty"`

	Timeout time.Duration `json:"-"`
}

// WithTimeout derives a context bounded by o.Timeout when one is set.
func (o CompletionOptions) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CompletionResult represents a normalized, complete model answer.
type CompletionResult struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    *Usage `json:"usage,omitempty"`
}

// ChunkType discriminates StreamChunk variants.
type ChunkType string

const (
	ChunkDelta ChunkType = "delta"
	ChunkFinal ChunkType = "final"
	ChunkError ChunkType = "error"
)

// StreamChunk represents one unit of provider output during streaming.
type StreamChunk struct {
	Type ChunkType

	// Content is the fragment for delta chunks and the authoritative answer
	// for final chunks. An empty final content means "use the accumulated deltas".
	Content string

	// Usage only ever accompanies final chunks.
	Usage *Usage

	// Provider and Model are set on final chunks.
	Provider string
	Model    string

	// Err is set on error chunks.
	Err *Error
}

// DeltaChunk builds a delta chunk.
func DeltaChunk(content string) StreamChunk {
	return StreamChunk{Type: ChunkDelta, Content: content}
}

// FinalChunk builds a final chunk.
func FinalChunk(content string, usage *Usage) StreamChunk {
	return StreamChunk{Type: ChunkFinal, Content: content, Usage: usage}
}

// ErrorChunk builds an error chunk from any error.
func ErrorChunk(err error) StreamChunk {
	return StreamChunk{Type: ChunkError, Err: AsError(err)}
}

// IsTerminal reports whether the chunk ends a stream.
func (c StreamChunk) IsTerminal() bool {
	return c.Type == ChunkFinal || c.Type == ChunkError
}
