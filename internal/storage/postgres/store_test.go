package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/davidbz/studygate/internal/domain"
	"github.com/davidbz/studygate/internal/storage/postgres"
)

// setupStore starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped under -short and when no container runtime is available.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration tests in short mode")
	}
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	// Skips instead of panicking when Docker is missing.
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("studygate_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.New(ctx, postgres.Config{DSN: dsn, MaxConns: 5, MinConns: 1, MigrateOnStart: true})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func TestStore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	t.Run("should scope chats to their owner", func(t *testing.T) {
		chat, err := store.CreateChat(ctx, "u1")
		require.NoError(t, err)

		got, err := store.GetChat(ctx, "u1", chat.ID)
		require.NoError(t, err)
		require.Equal(t, chat.ID, got.ID)

		_, err = store.GetChat(ctx, "u2", chat.ID)
		require.ErrorIs(t, err, domain.ErrChatNotFound)

		_, err = store.GetChat(ctx, "u1", "not-a-uuid")
		require.ErrorIs(t, err, domain.ErrChatNotFound)
	})

	t.Run("should persist messages attachments and chat updates", func(t *testing.T) {
		chat, err := store.CreateChat(ctx, "u1")
		require.NoError(t, err)

		att := &domain.Attachment{UserID: "u1", FileName: "cell.png", MimeType: "image/png", Data: []byte{0x89, 0x50}}
		require.NoError(t, store.SaveAttachment(ctx, att))

		question := &domain.StoredMessage{ChatID: chat.ID, Role: domain.RoleUser, Content: "What is this?"}
		require.NoError(t, store.InsertMessage(ctx, question))
		require.NoError(t, store.LinkAttachments(ctx, question.ID, []string{att.ID}))

		answer := &domain.StoredMessage{
			ChatID: chat.ID, Role: domain.RoleAssistant, Content: "A cell.",
			Provider: "gemini", Model: "gemini-2.0-flash-lite",
			CreatedAt: question.CreatedAt.Add(time.Second),
		}
		require.NoError(t, store.InsertMessage(ctx, answer))

		messages, err := store.ListMessages(ctx, chat.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		require.Equal(t, domain.RoleUser, messages[0].Role)
		require.Equal(t, "gemini", messages[1].Provider)

		require.NoError(t, store.UpdateTitle(ctx, chat.ID, "Cells"))
		require.NoError(t, store.TouchChat(ctx, chat.ID, time.Now()))
		require.ErrorIs(t, store.UpdateTitle(ctx, "00000000-0000-0000-0000-000000000000", "x"), domain.ErrChatNotFound)

		got, err := store.GetAttachment(ctx, "u1", att.ID)
		require.NoError(t, err)
		require.Equal(t, att.Data, got.Data)

		_, err = store.GetAttachment(ctx, "u2", att.ID)
		require.ErrorIs(t, err, domain.ErrAttachmentNotFound)
	})
}
