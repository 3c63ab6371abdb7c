package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// EmbeddingStore implements storage.EmbeddingStore using SQLite. Vectors are
// serialized as little-endian float32 BLOBs.
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
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check embedding: %w", err)
	}
	return n > 0, nil
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
		INSERT INTO embeddings (id, parent_id, text, language, vector, dimension, model, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.ParentID, rec.Text, rec.Language, serializeVector(rec.Vector),
		len(rec.Vector), rec.Model, rec.OwnerID, toNanos(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

// Get returns a record by id.
func (s *EmbeddingStore) Get(ctx context.Context, id string) (*types.EmbeddingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, text, language, vector, dimension, model, owner_id, created_at
		FROM embeddings WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByParents returns the records of the given conversations, newest first
// within each conversation and capped at maxPerParent per conversation.
func (s *EmbeddingStore) ListByParents(ctx context.Context, parentIDs []string, maxPerParent int) ([]types.EmbeddingRecord, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]any, 0, len(parentIDs)+1)
	for _, id := range parentIDs {
		args = append(args, id)
	}

	query := `
		SELECT id, parent_id, text, language, vector, dimension, model, owner_id, created_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY parent_id ORDER BY created_at DESC, id) AS rn
			FROM embeddings
			WHERE parent_id IN (` + placeholders + `)
		)`
	if maxPerParent > 0 {
		query += ` WHERE rn <= ?`
		args = append(args, maxPerParent)
	}
	query += ` ORDER BY parent_id, rn`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
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
		return nil, fmt.Errorf("failed to iterate embeddings: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*types.EmbeddingRecord, error) {
	var (
		rec       types.EmbeddingRecord
		blob      []byte
		dimension int
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.Text, &rec.Language, &blob,
		&dimension, &rec.Model, &rec.OwnerID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan embedding: %w", err)
	}
	vec, err := deserializeVector(blob, dimension)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", rec.ID, err)
	}
	rec.Vector = vec
	rec.CreatedAt = fromNanos(createdAt)
	return &rec, nil
}

func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeVector(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	v := make([]float32, dimension)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
