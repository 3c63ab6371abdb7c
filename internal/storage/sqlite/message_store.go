package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// MessageStore implements storage.MessageStore using SQLite.
type MessageStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.MessageStore = (*MessageStore)(nil)

// NewMessageStore creates a message store on an opened database.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db, now: time.Now}
}

// CreateConversation stores conv and adds its creator as a participant.
func (s *MessageStore) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	if conv == nil || conv.CreatedBy == "" {
		return fmt.Errorf("%w: conversation creator is required", storage.ErrInvalidInput)
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_by, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.CreatedBy, toNanos(conv.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
		conv.ID, conv.CreatedBy, toNanos(conv.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to add creator: %w", err)
	}
	return tx.Commit()
}

// AddParticipant adds userID to a conversation.
func (s *MessageStore) AddParticipant(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", storage.ErrInvalidInput)
	}
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO NOTHING
	`, conversationID, userID, toNanos(s.now()))
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *MessageStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}

// ListParticipants returns the participants of a conversation in join order.
func (s *MessageStore) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = ? ORDER BY joined_at, user_id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return collectStrings(rows)
}

// ListConversationsForUser returns the conversations userID participates in,
// oldest membership first.
func (s *MessageStore) ListConversationsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id FROM participants WHERE user_id = ? ORDER BY joined_at, conversation_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateMessage stores msg, assigning ID and CreatedAt when unset.
func (s *MessageStore) CreateMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.SenderID == "" {
		return fmt.Errorf("%w: message sender is required", storage.ErrInvalidInput)
	}
	if err := s.requireConversation(ctx, msg.ConversationID); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Language, toNanos(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetMessage returns a message by ID.
func (s *MessageStore) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, text, language, created_at
		FROM messages WHERE id = ?
	`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return msg, err
}

// ListMessages pages through a conversation in ascending chronological order.
func (s *MessageStore) ListMessages(ctx context.Context, conversationID string, opts storage.ListOptions) (*storage.Page[types.Message], error) {
	opts.Normalize()

	// Fetch one extra row to learn whether another page exists.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, text, language, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at, rowid
		LIMIT ? OFFSET ?
	`, conversationID, opts.Limit+1, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	page := &storage.Page[types.Message]{Items: msgs, NextOffset: opts.Offset + len(msgs)}
	if len(msgs) > opts.Limit {
		page.Items = msgs[:opts.Limit]
		page.NextOffset = opts.Offset + opts.Limit
		page.HasMore = true
	}
	return page, nil
}

// RecentMessages returns the latest n messages in chronological order.
func (s *MessageStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]types.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, text, language, created_at FROM (
			SELECT rowid AS rid, * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at, rid
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) requireConversation(ctx context.Context, id string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]types.Message, error) {
	defer func() { _ = rows.Close() }()
	var out []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

func scanMessage(row scanner) (*types.Message, error) {
	var (
		msg       types.Message
		createdAt int64
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.Language, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.CreatedAt = fromNanos(createdAt)
	return &msg, nil
}
