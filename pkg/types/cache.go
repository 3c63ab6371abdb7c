package types

import (
	"encoding/json"
	"time"
)

// CachedEntry is one stored feature result. Value is opaque to the cache
// layer; each feature pipeline decodes it into its own result type.
//
// Entries are never mutated in place. An entry whose ExpiresAt has passed is
// treated as absent and may be deleted lazily.
type CachedEntry struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	CachedAt   time.Time       `json:"cachedAt"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
}

// Expired reports whether the entry has a TTL that elapsed at or before now.
func (e *CachedEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
