package domain

import (
	"time"
)

// ErrChatNotFound indicates the chat does not exist for the caller.
var ErrChatNotFound = &Error{Code: CodeNotFound, Message: "chat not found"}

// ErrAttachmentNotFound indicates the attachment does not exist for the caller.
var ErrAttachmentNotFound = &Error{Code: CodeNotFound, Message: "attachment not found"}

// Chat is a conversation owned by one user.
type Chat struct {
	ID             string
	UserID         string
	Title          string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// StoredMessage is a persisted chat message.
type StoredMessage struct {
	ID        string
	ChatID    string
	Role      Role
	Content   string
	Provider  string
	Model     string
	CreatedAt time.Time
}

// ToChatMessages converts persisted messages to model input.
func ToChatMessages(stored []StoredMessage) []ChatMessage {
	messages := make([]ChatMessage, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return messages
}

// Attachment is an uploaded file owned by one user.
type Attachment struct {
	ID        string
	UserID    string
	FileName  string
	MimeType  string
	Data      []byte
	CreatedAt time.Time
}
