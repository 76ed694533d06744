// Package memory provides an in-process chat repository and attachment
// source for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/studygate/internal/domain"
)

// Store keeps chats, messages and attachments in maps.
type Store struct {
	mu          sync.RWMutex
	chats       map[string]*domain.Chat
	messages    map[string][]domain.StoredMessage
	attachments map[string]*domain.Attachment
	links       map[string][]string
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		chats:       make(map[string]*domain.Chat),
		messages:    make(map[string][]domain.StoredMessage),
		attachments: make(map[string]*domain.Attachment),
		links:       make(map[string][]string),
		now:         time.Now,
	}
}

// CreateChat creates an untitled chat.
func (s *Store) CreateChat(_ context.Context, userID string) (*domain.Chat, error) {
	now := s.now().UTC()
	chat := &domain.Chat{
		ID:             uuid.NewString(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()

	copied := *chat
	return &copied, nil
}

// GetChat returns a chat owned by userID.
func (s *Store) GetChat(_ context.Context, userID, chatID string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, domain.ErrChatNotFound
	}

	copied := *chat
	return &copied, nil
}

// ListMessages returns the messages of a chat in creation order.
func (s *Store) ListMessages(_ context.Context, chatID string) ([]domain.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.StoredMessage(nil), s.messages[chatID]...), nil
}

// InsertMessage appends a message, assigning an id and timestamp when missing.
func (s *Store) InsertMessage(_ context.Context, msg *domain.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[msg.ChatID]; !ok {
		return domain.ErrChatNotFound
	}

	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], *msg)
	return nil
}

// LinkAttachments records the attachments sent with a message.
func (s *Store) LinkAttachments(_ context.Context, messageID string, attachmentIDs []string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	s.links[messageID] = append(s.links[messageID], attachmentIDs...)
	s.mu.Unlock()

	return nil
}

// LinkedAttachments returns the attachment ids linked to a message.
func (s *Store) LinkedAttachments(messageID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.links[messageID]...)
}

// TouchChat updates the last activity time of a chat.
func (s *Store) TouchChat(_ context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	chat.LastActivityAt = at.UTC()
	return nil
}

// UpdateTitle sets the title of a chat.
func (s *Store) UpdateTitle(_ context.Context, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	chat.Title = title
	return nil
}

// ListChats returns the chats of a user, most recently active first.
func (s *Store) ListChats(_ context.Context, userID string) ([]domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []domain.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].LastActivityAt.After(chats[j].LastActivityAt)
	})
	return chats, nil
}

// SaveAttachment stores an attachment, assigning an id when missing.
func (s *Store) SaveAttachment(_ context.Context, att *domain.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	copied := *att
	s.attachments[att.ID] = &copied
	s.mu.Unlock()

	return nil
}

// GetAttachment returns an attachment owned by userID.
func (s *Store) GetAttachment(_ context.Context, userID, attachmentID string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attachments[attachmentID]
	if !ok || att.UserID != userID {
		return nil, domain.ErrAttachmentNotFound
	}

	copied := *att
	return &copied, nil
}
