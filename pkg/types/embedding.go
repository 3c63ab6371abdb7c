package types

import (
	"slices"
	"time"
)

// EmbeddingRecord is the vector representation of one message. ID equals the
// source message ID and ParentID the conversation ID. At most one record
// exists per ID and records are never updated.
type EmbeddingRecord struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchResult is a ranked hit returned by semantic search. It is computed per
// query and never persisted.
type SearchResult struct {
	ID         string  `json:"id"`
	ParentID   string  `json:"parentId"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Language   string  `json:"language"`
}

// AccessScope is the set of conversations a caller may read from. Every
// search over embedding records must be filtered to ConversationIDs.
type AccessScope struct {
	UserID          string   `json:"userId"`
	ConversationIDs []string `json:"conversationIds"`
}

// Contains reports whether conversationID is inside the scope.
func (s AccessScope) Contains(conversationID string) bool {
	return slices.Contains(s.ConversationIDs, conversationID)
}

// Empty reports whether the scope grants access to nothing.
func (s AccessScope) Empty() bool {
	return len(s.ConversationIDs) == 0
}

// BackfillResult summarizes one on-demand embedding backfill run.
type BackfillResult struct {
	Processed int `json:"processed"`
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}
