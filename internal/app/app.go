// Package app assembles the lingua component graph from configuration:
// storage backends, the model gateway, the feature services and the
// background engine. The CLI commands and the server tests share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/scrypster/lingua/internal/assistant"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/internal/engine"
	"github.com/scrypster/lingua/internal/features"
	"github.com/scrypster/lingua/internal/indexer"
	"github.com/scrypster/lingua/internal/llm"
	"github.com/scrypster/lingua/internal/metrics"
	"github.com/scrypster/lingua/internal/search"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/internal/storage/badger"
	"github.com/scrypster/lingua/internal/storage/postgres"
	"github.com/scrypster/lingua/internal/storage/sqlite"
)

// App is the assembled component graph.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Messages   storage.MessageStore
	Embeddings storage.EmbeddingStore
	Cache      *cache.Store

	Gateway   *llm.Gateway
	Features  *features.Service
	Search    *search.Engine
	Assistant *assistant.Assistant
	Indexer   *indexer.Indexer
	Engine    *engine.Engine

	closers []func() error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	chat     llm.Provider
	embedder llm.Provider
}

// WithLogger sets the root logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProviders replaces the configured model providers. embedder may be nil
// to use chat for embeddings.
func WithProviders(chat, embedder llm.Provider) Option {
	return func(o *options) {
		o.chat = chat
		o.embedder = embedder
	}
}

// Build opens the configured stores and wires every component. The engine is
// created but not started. Close releases the stores.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   o.logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	policy, err := config.LoadFeaturePolicy(cfg.Features.PolicyPath)
	if err != nil {
		return nil, err
	}

	chat, embedder := o.chat, o.embedder
	if chat == nil {
		if chat, err = llm.NewProvider(cfg.LLM); err != nil {
			return nil, err
		}
		if embedder, err = llm.NewEmbeddingProvider(cfg.LLM); err != nil {
			return nil, err
		}
	}

	a.Gateway, err = llm.NewGateway(llm.GatewayConfig{
		Chat:               chat,
		Embedder:           embedder,
		MaxAttempts:        cfg.LLM.MaxAttempts,
		BaseDelay:          cfg.LLM.BaseDelay,
		Timeout:            cfg.LLM.Timeout,
		EmbeddingDimension: cfg.LLM.EmbeddingDimension,
		Logger:             a.Logger,
		Metrics:            a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	a.Features, err = features.New(features.Deps{
		Cache:    a.Cache,
		Gateway:  a.Gateway,
		Messages: a.Messages,
		Policy:   policy,
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, err
	}

	a.Search, err = search.New(search.Config{
		Embeddings:                   a.Embeddings,
		Messages:                     a.Messages,
		Embedder:                     a.Gateway,
		MaxCandidatesPerConversation: cfg.Search.MaxCandidatesPerConversation,
		Logger:                       a.Logger,
	})
	if err != nil {
		return nil, err
	}

	a.Assistant, err = assistant.New(assistant.Config{
		Gateway:  a.Gateway,
		Search:   a.Search,
		Messages: a.Messages,
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, err
	}

	a.Indexer, err = indexer.New(indexer.Config{
		Embeddings:  a.Embeddings,
		Messages:    a.Messages,
		Embedder:    a.Gateway,
		Model:       cfg.LLM.EmbeddingModel,
		Concurrency: cfg.Engine.BackfillConcurrency,
		Logger:      a.Logger,
		Metrics:     a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	a.Engine, err = engine.New(a.Indexer, engine.Config{
		NumWorkers:      cfg.Engine.Workers,
		QueueSize:       cfg.Engine.QueueSize,
		ShutdownTimeout: cfg.Engine.ShutdownTimeout,
		AutoExtract:     cfg.Engine.AutoExtract,
	},
		engine.WithLogger(a.Logger),
		engine.WithMetrics(a.Metrics),
		engine.WithExtractor(a.Features),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// openStores opens the message store (always SQLite), the embedding store
// (Storage.Engine) and the cache backend (Storage.CacheEngine).
func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config.Storage
	if err := os.MkdirAll(cfg.DataPath, 0750); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataPath, err)
	}

	lite, err := sqlite.Open(ctx, SQLitePath(a.Config))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	a.closers = append(a.closers, lite.Close)
	a.Messages = sqlite.NewMessageStore(lite)

	var pg *sql.DB
	if cfg.Engine == "postgres" || cfg.CacheEngine == "postgres" {
		pg, err = postgres.Open(ctx, cfg.PostgresDSN, a.Config.LLM.EmbeddingDimension)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
	}

	switch cfg.Engine {
	case "postgres":
		a.Embeddings = postgres.NewEmbeddingStore(pg)
	default:
		a.Embeddings = sqlite.NewEmbeddingStore(lite)
	}

	var backend storage.CacheBackend
	switch cfg.CacheEngine {
	case "postgres":
		backend = postgres.NewCacheStore(pg)
	case "badger":
		b, err := badger.Open(badger.Config{Path: filepath.Join(cfg.DataPath, "cache"), Logger: a.Logger})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, b.Close)
		backend = b
	default:
		backend = sqlite.NewCacheStore(lite)
	}
	a.Cache = cache.New(backend, cache.WithLogger(a.Logger), cache.WithMetrics(a.Metrics))

	a.Logger.Info("app: storage ready",
		"engine", cfg.Engine, "cache_engine", cfg.CacheEngine, "data_path", cfg.DataPath)
	return nil
}

// SQLitePath is the database file holding conversations and messages.
func SQLitePath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataPath, "lingua.db")
}

// Close releases every store in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
