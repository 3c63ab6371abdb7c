package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/lingua/internal/app"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/internal/server"
	"github.com/scrypster/lingua/web/handlers"
)

func (c *cli) serveCmd() *cobra.Command {
	var sweepInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context(), sweepInterval)
		},
	}
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", time.Hour, "how often to purge expired cache entries (0 disables)")
	return cmd
}

func (c *cli) runServe(parent context.Context, sweepInterval time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, c.cfg, app.WithLogger(c.logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Warn("lingua: failed to close stores", "error", err)
		}
	}()

	if err := a.Engine.Start(ctx); err != nil {
		return err
	}

	addr, _, err := server.Start(ctx, server.Deps{
		Config:   c.cfg,
		Messages: a.Messages,
		Services: handlers.Services{
			Features:  a.Features,
			Search:    a.Search,
			Assistant: a.Assistant,
			Indexer:   a.Indexer,
		},
		Engine:   a.Engine,
		Gatherer: a.Registry,
		Logger:   c.logger,
	})
	if err != nil {
		_ = a.Engine.Shutdown(context.Background())
		return err
	}
	c.logger.Info("lingua: serving", "url", "http://"+addr, "mode", c.cfg.Security.Mode)

	if sweepInterval > 0 {
		go c.sweepLoop(ctx, a.Cache, sweepInterval)
	}
	if path := c.cfg.Features.PolicyPath; path != "" {
		watcher := config.NewPolicyWatcher(path, a.Features.SetPolicy, c.logger)
		if err := watcher.Start(); err != nil {
			c.logger.Warn("lingua: feature policy will not reload", "path", path, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	<-ctx.Done()
	c.logger.Info("lingua: shutting down")

	// Drain the event queue first, then give in-flight requests a moment.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Engine.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := a.Engine.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("lingua: engine shutdown", "error", err)
	}
	time.Sleep(time.Second)
	return nil
}

func (c *cli) sweepLoop(ctx context.Context, store *cache.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				c.logger.Warn("lingua: cache sweep failed", "error", err)
				continue
			}
			c.logger.Debug("lingua: cache swept", "removed", n)
		}
	}
}
