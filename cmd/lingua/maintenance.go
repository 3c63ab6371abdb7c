package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/lingua/internal/app"
	"github.com/scrypster/lingua/internal/backup"
)

func (c *cli) backfillCmd() *cobra.Command {
	var (
		userID  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed every message in the conversations of a user",
		Long: `backfill indexes every message in every conversation the user participates
in. Messages that already have an embedding are skipped, so the command is safe
to re-run after a partial failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.Build(ctx, c.cfg, app.WithLogger(c.logger))
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Indexer.Backfill(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d generated=%d skipped=%d errors=%d\n",
				res.Processed, res.Generated, res.Skipped, res.Errors)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user whose conversations are indexed")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "abort the run after this long")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) sweepCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-cache",
		Short: "Delete expired feature cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Build(cmd.Context(), c.cfg, app.WithLogger(c.logger))
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Cache.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired cache entries\n", n)
			return nil
		},
	}
}

func (c *cli) backupCmd() *cobra.Command {
	var (
		dir    string
		policy = backup.DefaultPolicy()
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite database and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = filepath.Join(c.cfg.Storage.DataPath, "backups")
			}
			now := time.Now()
			info, err := backup.Snapshot(cmd.Context(), app.SQLitePath(c.cfg), dir, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", info.Path, info.Size)

			removed, err := backup.Prune(dir, policy, now)
			for _, path := range removed {
				c.logger.Info("lingua: pruned snapshot", "path", path)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "snapshot directory (default: $LINGUA_DATA_PATH/backups)")
	cmd.Flags().IntVar(&policy.Hourly, "keep-hourly", policy.Hourly, "snapshots kept from the last day")
	cmd.Flags().IntVar(&policy.Daily, "keep-daily", policy.Daily, "snapshots kept from the last week")
	cmd.Flags().IntVar(&policy.Weekly, "keep-weekly", policy.Weekly, "snapshots kept from the last month")
	cmd.Flags().IntVar(&policy.Monthly, "keep-monthly", policy.Monthly, "snapshots kept from the last year")
	return cmd
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Replace the SQLite database with a snapshot (stop the server first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := app.SQLitePath(c.cfg)
			if err := backup.Restore(cmd.Context(), args[0], target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", target, args[0])
			return nil
		},
	}
}
