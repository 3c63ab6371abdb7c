package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// EmbeddingStore implements storage.EmbeddingStore using a pgvector column.
// Similarity is still computed by the search engine; the column type keeps
// vectors compact and validates their dimension on insert.
type EmbeddingStore struct {
	db *sql.DB
}

var _ storage.EmbeddingStore = (*EmbeddingStore)(nil)

// NewEmbeddingStore creates an embedding store on an opened database.
func NewEmbeddingStore(db *sql.DB) *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// Exists reports whether a record with the given id is stored.
func (s *EmbeddingStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM embeddings WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check embedding: %w", err)
	}
	return ok, nil
}

// Insert stores rec unless a record with the same id exists.
func (s *EmbeddingStore) Insert(ctx context.Context, rec *types.EmbeddingRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: embedding id is required", storage.ErrInvalidInput)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, parent_id, text, language, vector, model, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.ParentID, rec.Text, rec.Language, pgvector.NewVector(rec.Vector),
		rec.Model, rec.OwnerID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

// Get returns a record by id.
func (s *EmbeddingStore) Get(ctx context.Context, id string) (*types.EmbeddingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, text, language, vector, model, owner_id, created_at
		FROM embeddings WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return rec, err
}

// ListByParents returns the records of the given conversations, newest first
// within each conversation and capped at maxPerParent per conversation.
func (s *EmbeddingStore) ListByParents(ctx context.Context, parentIDs []string, maxPerParent int) ([]types.EmbeddingRecord, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	limit := sql.NullInt64{Int64: int64(maxPerParent), Valid: maxPerParent > 0}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, text, language, vector, model, owner_id, created_at
		FROM (
			SELECT e.*, ROW_NUMBER() OVER (PARTITION BY parent_id ORDER BY created_at DESC, id) AS rn
			FROM embeddings e
			WHERE parent_id = ANY($1)
		) ranked
		WHERE $2::bigint IS NULL OR rn <= $2::bigint
		ORDER BY parent_id, rn
	`, pq.Array(parentIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.EmbeddingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate embeddings: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.EmbeddingRecord, error) {
	var (
		rec types.EmbeddingRecord
		vec pgvector.Vector
	)
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.Text, &rec.Language, &vec,
		&rec.Model, &rec.OwnerID, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: failed to scan embedding: %w", err)
	}
	rec.Vector = vec.Slice()
	return &rec, nil
}
