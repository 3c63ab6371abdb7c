package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		wantErr   bool
		wantLevel slog.Level
		wantJSON  bool
	}{
		{"defaults", config.LoggingConfig{Level: "info", Format: "text"}, false, slog.LevelInfo, false},
		{"json debug", config.LoggingConfig{Level: "debug", Format: "json"}, false, slog.LevelDebug, true},
		{"upper case", config.LoggingConfig{Level: "WARN", Format: "JSON"}, false, slog.LevelWarn, true},
		{"bad level", config.LoggingConfig{Level: "loud", Format: "text"}, true, 0, false},
		{"bad format", config.LoggingConfig{Level: "info", Format: "xml"}, true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(tt.cfg, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.wantLevel))
			assert.False(t, logger.Enabled(ctx, tt.wantLevel-1))

			logger.Error("hello", "k", "v")
			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"hello"`)
			} else {
				assert.Contains(t, buf.String(), "msg=hello")
			}
		})
	}
}

// execute runs the CLI against a fresh data directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeIn(t, t.TempDir(), args...)
}

func executeIn(t *testing.T, dataPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LINGUA_DATA_PATH", dataPath)
	t.Setenv("LINGUA_STORAGE_ENGINE", "sqlite")
	t.Setenv("LINGUA_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSweepCache(t *testing.T) {
	out, err := execute(t, "sweep-cache")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 expired cache entries\n", out)
}

func TestBackfill(t *testing.T) {
	out, err := execute(t, "backfill", "--user", "alice")
	require.NoError(t, err)
	assert.Equal(t, "processed=0 generated=0 skipped=0 errors=0\n", out)
}

func TestBackfill_RequiresUser(t *testing.T) {
	_, err := execute(t, "backfill")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"user"`)
}

func TestInvalidConfigFailsEarly(t *testing.T) {
	t.Setenv("LINGUA_SECURITY_MODE", "chaos")
	_, err := execute(t, "sweep-cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security mode")
}

func TestBackupAndRestore(t *testing.T) {
	dataPath := t.TempDir()
	_, err := executeIn(t, dataPath, "sweep-cache")
	require.NoError(t, err, "creates the database")

	out, err := executeIn(t, dataPath, "backup")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "wrote "), out)

	snapshots, err := filepath.Glob(filepath.Join(dataPath, "backups", "lingua-*.db"))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	out, err = executeIn(t, dataPath, "restore", snapshots[0])
	require.NoError(t, err)
	assert.Contains(t, out, "restored ")

	_, err = executeIn(t, dataPath, "restore")
	assert.Error(t, err, "snapshot argument is required")
}
