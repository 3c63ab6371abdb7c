// Command lingua runs the messaging AI feature service and its maintenance
// jobs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/lingua/internal/config"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// cli carries the state the root command prepares for its subcommands.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "lingua",
		Short: "Translation, cultural context and semantic search for a messaging app",
		Long: `lingua serves the AI feature layer of a messaging app: language detection,
translation, formality, slang, smart replies, structured data extraction,
semantic search and a retrieval-augmented assistant.

Configuration is read from LINGUA_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			c.cfg, c.logger = cfg, logger
			return nil
		},
	}
	root.AddCommand(c.serveCmd(), c.backfillCmd(), c.sweepCacheCmd(), c.backupCmd(), c.restoreCmd())
	return root
}

// newLogger builds the process logger from LINGUA_LOG_LEVEL and
// LINGUA_LOG_FORMAT.
func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", cfg.Format)
	}
}
