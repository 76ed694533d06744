// Package postgres provides the PostgreSQL chat repository and attachment
// source, built on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidbz/studygate/internal/domain"
)

const pgInvalidTextRepresentation = "22P02"

// Store is a PostgreSQL-backed domain.ChatRepository.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.ChatRepository = (*Store)(nil)

// New connects to PostgreSQL and applies migrations when configured.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateChat creates an untitled chat.
func (s *Store) CreateChat(ctx context.Context, userID string) (*domain.Chat, error) {
	now := time.Now().UTC()
	chat := &domain.Chat{
		ID:             uuid.NewString(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, title, created_at, last_activity_at) VALUES ($1, $2, '', $3, $3)`,
		chat.ID, chat.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	return chat, nil
}

// GetChat returns a chat owned by userID.
func (s *Store) GetChat(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, last_activity_at FROM chats WHERE id = $1 AND user_id = $2`,
		chatID, userID,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.LastActivityAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows), isInvalidID(err):
		return nil, domain.ErrChatNotFound
	case err != nil:
		return nil, fmt.Errorf("querying chat: %w", err)
	}

	return &chat, nil
}

// ListMessages returns the messages of a chat in creation order.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]domain.StoredMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, provider, model, created_at
		   FROM messages WHERE chat_id = $1 ORDER BY created_at, id`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StoredMessage, error) {
		var m domain.StoredMessage
		var role string
		scanErr := row.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.Provider, &m.Model, &m.CreatedAt)
		m.Role = domain.Role(role)
		return m, scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}

	return messages, nil
}

// InsertMessage stores a message, assigning an id and timestamp when missing.
func (s *Store) InsertMessage(ctx context.Context, msg *domain.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, content, provider, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ChatID, string(msg.Role), msg.Content, msg.Provider, msg.Model, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return nil
}

// LinkAttachments records the attachments sent with a message.
func (s *Store) LinkAttachments(ctx context.Context, messageID string, attachmentIDs []string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range attachmentIDs {
		batch.Queue(
			`INSERT INTO message_attachments (message_id, attachment_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			messageID, id)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("linking attachments: %w", err)
	}

	return nil
}

// TouchChat updates the last activity time of a chat.
func (s *Store) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	return s.updateChat(ctx, `UPDATE chats SET last_activity_at = $2 WHERE id = $1`, chatID, at.UTC())
}

// UpdateTitle sets the title of a chat.
func (s *Store) UpdateTitle(ctx context.Context, chatID, title string) error {
	return s.updateChat(ctx, `UPDATE chats SET title = $2 WHERE id = $1`, chatID, title)
}

func (s *Store) updateChat(ctx context.Context, query, chatID string, value any) error {
	tag, err := s.pool.Exec(ctx, query, chatID, value)
	if isInvalidID(err) {
		return domain.ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("updating chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChatNotFound
	}
	return nil
}

// SaveAttachment stores an attachment, assigning an id when missing.
func (s *Store) SaveAttachment(ctx context.Context, att *domain.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO attachments (id, user_id, file_name, mime_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		att.ID, att.UserID, att.FileName, att.MimeType, att.Data, att.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting attachment: %w", err)
	}

	return nil
}

// GetAttachment returns an attachment owned by userID.
func (s *Store) GetAttachment(ctx context.Context, userID, attachmentID string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, file_name, mime_type, data, created_at
		   FROM attachments WHERE id = $1 AND user_id = $2`,
		attachmentID, userID,
	).Scan(&att.ID, &att.UserID, &att.FileName, &att.MimeType, &att.Data, &att.CreatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows), isInvalidID(err):
		return nil, domain.ErrAttachmentNotFound
	case err != nil:
		return nil, fmt.Errorf("querying attachment: %w", err)
	}

	return &att, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// isInvalidID reports whether err is PostgreSQL rejecting a malformed UUID.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}
