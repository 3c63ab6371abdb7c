package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scrypster/lingua/internal/indexer"
	"github.com/scrypster/lingua/internal/metrics"
	"github.com/scrypster/lingua/pkg/types"
)

// Indexer embeds a message. *indexer.Indexer implements it.
type Indexer interface {
	IndexMessage(ctx context.Context, msg types.Message) (indexer.Outcome, error)
}

// Extractor extracts structured data from a message. *features.Service
// implements it.
type Extractor interface {
	AutoExtract(ctx context.Context, msg types.Message) (*types.StructuredData, error)
}

// Engine runs background work for newly created messages.
type Engine struct {
	config    Config
	indexer   Indexer
	extractor Extractor
	logger    *slog.Logger
	metrics   *metrics.Metrics

	queue        chan *Job
	workerWG     sync.WaitGroup
	workerCtx    context.Context
	workerCancel context.CancelFunc

	started      bool
	shuttingDown bool
	mu           sync.RWMutex

	onIndexed   func(msg types.Message, outcome indexer.Outcome)
	onExtracted func(msg types.Message, data *types.StructuredData)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records dropped events and background failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithExtractor enables structured-data extraction when cfg.AutoExtract is
// set.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// New creates an engine. Call Start before publishing.
func New(ix Indexer, cfg Config, opts ...Option) (*Engine, error) {
	if ix == nil {
		return nil, errors.New("indexer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e := &Engine{
		config:  cfg,
		indexer: ix,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SetOnIndexed registers a callback invoked after a message was indexed or
// skipped.
func (e *Engine) SetOnIndexed(callback func(msg types.Message, outcome indexer.Outcome)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onIndexed = callback
}

// SetOnExtracted registers a callback invoked when structured data was found
// in a new message.
func (e *Engine) SetOnExtracted(callback func(msg types.Message, data *types.StructuredData)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExtracted = callback
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	e.queue = make(chan *Job, e.config.QueueSize)
	// Detached from ctx so in-flight jobs survive request cancellation; only
	// a shutdown timeout cancels them.
	e.workerCtx, e.workerCancel = context.WithCancel(context.WithoutCancel(ctx))
	e.startWorkerPool()
	e.started = true

	e.logger.Info("engine: started",
		"workers", e.config.NumWorkers,
		"queue_size", e.config.QueueSize,
		"auto_extract", e.autoExtract())
	return nil
}

// Shutdown stops accepting events and waits for queued ones to drain, up to
// ShutdownTimeout or ctx expiry. Jobs still running after that are cancelled.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine not started")
	}
	e.shuttingDown = true
	close(e.queue)
	e.mu.Unlock()

	err := e.stopWorkerPool(ctx)
	e.workerCancel()

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()

	e.logger.Info("engine: stopped")
	return err
}

// PublishMessageCreated hands msg to the worker pool without blocking. It
// returns false when the queue is full or the engine is not running; the
// caller's write has already succeeded either way.
func (e *Engine) PublishMessageCreated(msg types.Message) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started || e.shuttingDown {
		e.logger.Warn("engine: not running, dropping message event", "message_id", msg.ID)
		e.metrics.EventDropped()
		return false
	}
	return e.enqueue(newJob(msg))
}

// QueueLength returns the number of events waiting for a worker.
func (e *Engine) QueueLength() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.queue)
}

func (e *Engine) autoExtract() bool {
	return e.config.AutoExtract && e.extractor != nil
}

func (e *Engine) callbacks() (func(types.Message, indexer.Outcome), func(types.Message, *types.StructuredData)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.onIndexed, e.onExtracted
}
