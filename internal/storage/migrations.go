package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// Migrator applies numbered SQL migrations read from an fs.FS (normally an
// embed.FS compiled into the backend package) and tracks the applied version
// in a schema_migrations table. Files are named NNN_name.up.sql.
type Migrator struct {
	db  *sql.DB
	dir fs.FS

	// placeholder renders the n-th (1-based) bind parameter: "?" for
	// SQLite, "$n" for PostgreSQL.
	placeholder func(n int) string
}

type migration struct {
	version uint
	name    string
	file    string
}

// QuestionPlaceholder renders SQLite-style bind parameters.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders PostgreSQL-style bind parameters.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// NewMigrator creates a Migrator for db reading migrations from dir.
func NewMigrator(db *sql.DB, dir fs.FS, placeholder func(int) string) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("migrations: migration source is required")
	}
	if placeholder == nil {
		placeholder = QuestionPlaceholder
	}
	return &Migrator{db: db, dir: dir, placeholder: placeholder}, nil
}

// Up applies all pending migrations in ascending version order. Each
// migration and its version row commit in one transaction.
func (m *Migrator) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("migrations: failed to create schema table: %w", err)
	}

	migrations, err := m.load()
	if err != nil {
		return err
	}

	current, err := m.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return err
	}

	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}
		body, err := fs.ReadFile(m.dir, mig.file)
		if err != nil {
			return fmt.Errorf("migrations: failed to read %s: %w", mig.file, err)
		}
		if err := m.apply(ctx, mig, string(body)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig migration, body string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrations: begin version %d: %w", mig.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("migrations: failed to apply version %d (%s): %w", mig.version, mig.name, err)
	}
	q := "INSERT INTO schema_migrations (version) VALUES (" + m.placeholder(1) + ")"
	if _, err := tx.ExecContext(ctx, q, mig.version); err != nil {
		return fmt.Errorf("migrations: failed to record version %d: %w", mig.version, err)
	}
	return tx.Commit()
}

// Version returns the highest applied migration version, or ErrNoMigration.
func (m *Migrator) Version(ctx context.Context) (uint, error) {
	var version uint
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}

// load lists NNN_name.up.sql files sorted by version. Files without a
// numeric prefix are ignored.
func (m *Migrator) load() ([]migration, error) {
	entries, err := fs.ReadDir(m.dir, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to read directory: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		idx := strings.Index(name, "_")
		if idx < 0 {
			continue
		}
		v, err := strconv.ParseUint(name[:idx], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, migration{
			version: uint(v),
			name:    strings.TrimSuffix(name[idx+1:], ".up.sql"),
			file:    path.Clean(name),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
