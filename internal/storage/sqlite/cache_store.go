package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// CacheStore implements storage.CacheBackend using SQLite.
type CacheStore struct {
	db *sql.DB
}

var _ storage.CacheBackend = (*CacheStore)(nil)

// NewCacheStore creates a cache backend on an opened database.
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

// GetEntry returns the stored entry, expired or not.
func (s *CacheStore) GetEntry(ctx context.Context, collection, key string) (*types.CachedEntry, error) {
	var (
		value     string
		cachedAt  int64
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, cached_at, expires_at FROM cache_entries WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&value, &cachedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry := &types.CachedEntry{
		Collection: collection,
		Key:        key,
		Value:      []byte(value),
		CachedAt:   fromNanos(cachedAt),
	}
	if expiresAt.Valid {
		t := fromNanos(expiresAt.Int64)
		entry.ExpiresAt = &t
	}
	return entry, nil
}

// PutEntry creates or replaces an entry.
func (s *CacheStore) PutEntry(ctx context.Context, entry *types.CachedEntry) error {
	if entry == nil || entry.Collection == "" || entry.Key == "" {
		return fmt.Errorf("%w: collection and key are required", storage.ErrInvalidInput)
	}

	var expiresAt sql.NullInt64
	if entry.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: toNanos(*entry.ExpiresAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (collection, key, value, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			value = excluded.value,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, entry.Collection, entry.Key, string(entry.Value), toNanos(entry.CachedAt), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry if present.
func (s *CacheStore) DeleteEntry(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteExpired removes every entry that expired at or before now.
func (s *CacheStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, toNanos(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}
