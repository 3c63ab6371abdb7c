// Package backup snapshots and restores the SQLite database that holds
// conversations, messages and (for the sqlite engines) embeddings and the
// feature cache. Snapshots are verified with PRAGMA integrity_check and pruned
// by a tiered retention policy.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	filePrefix = "lingua-"
	fileSuffix = ".db"
	timeLayout = "20060102T150405Z"
)

// Info describes one snapshot file.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Snapshot writes a verified point-in-time copy of the database at dbPath
// into dir, named after now.
func Snapshot(ctx context.Context, dbPath, dir string, now time.Time) (Info, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return Info{}, fmt.Errorf("backup: create %s: %w", dir, err)
	}
	ts := now.UTC().Truncate(time.Second)
	dest := filepath.Join(dir, filePrefix+ts.Format(timeLayout)+fileSuffix)
	if _, err := os.Stat(dest); err == nil {
		return Info{}, fmt.Errorf("backup: %s already exists", dest)
	}

	src, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return Info{}, fmt.Errorf("backup: open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	// VACUUM INTO produces a consistent copy even while the WAL is active.
	quoted := strings.ReplaceAll(dest, "'", "''")
	if _, err := src.ExecContext(ctx, "VACUUM INTO '"+quoted+"'"); err != nil {
		return Info{}, fmt.Errorf("backup: vacuum into %s: %w", dest, err)
	}

	if err := Verify(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return Info{}, err
	}
	st, err := os.Stat(dest)
	if err != nil {
		return Info{}, fmt.Errorf("backup: stat %s: %w", dest, err)
	}
	return Info{Path: dest, Timestamp: ts, Size: st.Size()}, nil
}

// Verify runs SQLite's integrity check against the file at path.
func Verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check %s: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check %s failed: %s", path, result)
	}
	return nil
}

// Restore replaces the database at targetPath with the snapshot at
// backupPath. Nothing may have the target open.
func Restore(ctx context.Context, backupPath, targetPath string) error {
	if err := Verify(ctx, backupPath); err != nil {
		return err
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", backupPath, err)
	}
	defer func() { _ = src.Close() }()

	// Write beside the target and rename so a failed copy never leaves a
	// truncated database behind.
	tmp := targetPath + ".restore"
	dst, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", tmp, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: copy: %w", err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: sync: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: close: %w", err)
	}

	// Stale WAL files would be replayed over the restored pages.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(targetPath + suffix)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		return fmt.Errorf("backup: replace %s: %w", targetPath, err)
	}
	return Verify(ctx, targetPath)
}
