// Package types defines the shared data model for lingua: conversations and
// messages owned by the external message store, cache entries, embedding
// records, and the per-feature result variants returned to callers.
package types

import "time"

// Conversation is a chat thread. Participation is tracked separately by the
// message store and defines a caller's AccessScope.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single chat message. Text may be empty for media-only messages;
// such messages are never embedded.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	Language       string    `json:"language,omitempty"` // ISO 639 code when known
	CreatedAt      time.Time `json:"createdAt"`
}
