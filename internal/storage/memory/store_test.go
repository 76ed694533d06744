package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/storage/memory"
)

func TestStore_Chats(t *testing.T) {
	t.Run("should scope chats to their owner", func(t *testing.T) {
		store := memory.NewStore()
		ctx := context.Background()

		chat, err := store.CreateChat(ctx, "u1")
		require.NoError(t, err)
		require.NotEmpty(t, chat.ID)

		got, err := store.GetChat(ctx, "u1", chat.ID)
		require.NoError(t, err)
		require.Equal(t, chat.ID, got.ID)

		_, err = store.GetChat(ctx, "u2", chat.ID)
		require.ErrorIs(t, err, domain.ErrChatNotFound)
		require.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})

	t.Run("should keep messages in insertion order", func(t *testing.T) {
		store := memory.NewStore()
		ctx := context.Background()
		chat, _ := store.CreateChat(ctx, "u1")

		first := &domain.StoredMessage{ChatID: chat.ID, Role: domain.RoleUser, Content: "q"}
		require.NoError(t, store.InsertMessage(ctx, first))
		require.NotEmpty(t, first.ID)
		require.NoError(t, store.InsertMessage(ctx, &domain.StoredMessage{ChatID: chat.ID, Role: domain.RoleAssistant, Content: "a"}))

		messages, err := store.ListMessages(ctx, chat.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		require.Equal(t, []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "q"},
			{Role: domain.RoleAssistant, Content: "a"},
		}, domain.ToChatMessages(messages))
	})

	t.Run("should reject messages for unknown chats", func(t *testing.T) {
		err := memory.NewStore().InsertMessage(context.Background(), &domain.StoredMessage{ChatID: "missing"})
		require.ErrorIs(t, err, domain.ErrChatNotFound)
	})

	t.Run("should update activity and title", func(t *testing.T) {
		store := memory.NewStore()
		ctx := context.Background()
		chat, _ := store.CreateChat(ctx, "u1")
		later := chat.LastActivityAt.Add(time.Hour)

		require.NoError(t, store.TouchChat(ctx, chat.ID, later))
		require.NoError(t, store.UpdateTitle(ctx, chat.ID, "Cell biology"))

		chats, err := store.ListChats(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, chats, 1)
		require.Equal(t, "Cell biology", chats[0].Title)
		require.True(t, chats[0].LastActivityAt.Equal(later))
	})
}

func TestStore_Attachments(t *testing.T) {
	t.Run("should scope attachments to their owner", func(t *testing.T) {
		store := memory.NewStore()
		ctx := context.Background()

		att := &domain.Attachment{UserID: "u1", FileName: "notes.md", MimeType: "text/markdown", Data: []byte("# Notes")}
		require.NoError(t, store.SaveAttachment(ctx, att))

		got, err := store.GetAttachment(ctx, "u1", att.ID)
		require.NoError(t, err)
		require.Equal(t, []byte("# Notes"), got.Data)

		_, err = store.GetAttachment(ctx, "u2", att.ID)
		require.ErrorIs(t, err, domain.ErrAttachmentNotFound)
	})

	t.Run("should record links", func(t *testing.T) {
		store := memory.NewStore()

		require.NoError(t, store.LinkAttachments(context.Background(), "m1", []string{"a1", "a2"}))
		require.Equal(t, []string{"a1", "a2"}, store.LinkedAttachments("m1"))
	})
}
