// Package postgres provides PostgreSQL implementations of the lingua cache
// and embedding stores. Embeddings live in a pgvector vector(D) column.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// schema creates the cache and embedding tables. %d is the embedding
// dimension, fixed for the lifetime of the database.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS cache_entries (
    collection TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      JSONB NOT NULL,
    cached_at  TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ,
    PRIMARY KEY (collection, key)
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at
    ON cache_entries(expires_at) WHERE expires_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS embeddings (
    id         TEXT PRIMARY KEY,
    parent_id  TEXT NOT NULL,
    text       TEXT NOT NULL,
    language   TEXT NOT NULL,
    vector     vector(%d) NOT NULL,
    model      TEXT NOT NULL,
    owner_id   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_embeddings_parent_created
    ON embeddings(parent_id, created_at DESC);
`

// Open connects to PostgreSQL and applies the schema for the given
// embedding dimension. The pgvector extension must be installable.
func Open(ctx context.Context, dsn string, dimension int) (*sql.DB, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(schema, dimension)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	return db, nil
}
