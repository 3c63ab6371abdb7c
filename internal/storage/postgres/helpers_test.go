package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// truncateForTest empties both tables between tests.
func truncateForTest(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE cache_entries, embeddings"); err != nil {
		return fmt.Errorf("postgres: failed to truncate: %w", err)
	}
	return nil
}
