// Package storage provides composable storage interfaces for lingua.
//
// The storage layer is split into small ports: the cache backend behind the
// Cache Store, the embedding store behind the indexer and search engine, and
// the message store that stands in for the messaging backend's conversation
// data. Backends live in sub-packages and may implement any subset.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/lingua/pkg/types"
)

// CacheBackend persists cached feature results keyed by (collection, key).
type CacheBackend interface {
	// GetEntry returns the stored entry, expired or not.
	// Returns ErrNotFound if no entry exists.
	GetEntry(ctx context.Context, collection, key string) (*types.CachedEntry, error)

	// PutEntry creates or replaces an entry (last writer wins).
	PutEntry(ctx context.Context, entry *types.CachedEntry) error

	// DeleteEntry removes an entry. Deleting a missing entry is not an error.
	DeleteEntry(ctx context.Context, collection, key string) error

	// DeleteExpired removes every entry whose expiry is at or before now and
	// returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// EmbeddingStore persists one embedding record per message.
type EmbeddingStore interface {
	// Exists reports whether a record with the given id is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Insert stores a record if no record with the same id exists.
	// Returns ErrAlreadyExists when one does, ErrInvalidInput for an empty
	// id or vector.
	Insert(ctx context.Context, rec *types.EmbeddingRecord) error

	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.EmbeddingRecord, error)

	// ListByParents returns the records of the given conversations, at most
	// maxPerParent per conversation (newest first). maxPerParent <= 0 means
	// unbounded.
	ListByParents(ctx context.Context, parentIDs []string, maxPerParent int) ([]types.EmbeddingRecord, error)
}

// MessageStore is the conversation and message data the core consumes.
type MessageStore interface {
	// CreateConversation stores a conversation and adds its creator as a
	// participant. An empty ID is assigned.
	CreateConversation(ctx context.Context, conv *types.Conversation) error

	// AddParticipant adds userID to a conversation. Adding an existing
	// participant is a no-op. Returns ErrNotFound for an unknown conversation.
	AddParticipant(ctx context.Context, conversationID, userID string) error

	// IsParticipant reports whether userID belongs to the conversation.
	// Returns ErrNotFound for an unknown conversation.
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	// ListParticipants returns the user IDs of a conversation's participants.
	// Returns ErrNotFound for an unknown conversation.
	ListParticipants(ctx context.Context, conversationID string) ([]string, error)

	// ListConversationsForUser returns the IDs of every conversation userID
	// participates in.
	ListConversationsForUser(ctx context.Context, userID string) ([]string, error)

	// CreateMessage stores a message, assigning ID and CreatedAt when unset.
	// Returns ErrNotFound for an unknown conversation.
	CreateMessage(ctx context.Context, msg *types.Message) error

	// GetMessage returns a message by ID, or ErrNotFound.
	GetMessage(ctx context.Context, id string) (*types.Message, error)

	// ListMessages pages through a conversation in ascending chronological order.
	ListMessages(ctx context.Context, conversationID string, opts ListOptions) (*Page[types.Message], error)

	// RecentMessages returns the latest n messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, n int) ([]types.Message, error)
}
