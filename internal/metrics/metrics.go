// Package metrics registers the Prometheus collectors lingua exports on
// /metrics. A nil *Metrics is valid and records nothing, so components can
// take one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheError   = "error"
)

// Metrics holds every lingua collector.
type Metrics struct {
	llmRequests        *prometheus.CounterVec
	llmRetries         *prometheus.CounterVec
	llmDuration        *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	cacheWriteFailures *prometheus.CounterVec
	indexerEvents      *prometheus.CounterVec
	backgroundFailures *prometheus.CounterVec
	droppedEvents      prometheus.Counter
}

// New registers the collectors on reg. Registering twice on the same
// registry panics, as with promauto.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_llm_requests_total",
			Help: "Model gateway calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		llmRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_llm_retries_total",
			Help: "Model gateway retries by operation",
		}, []string{"operation"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingua_llm_request_duration_seconds",
			Help:    "Model gateway call duration including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"operation"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_cache_lookups_total",
			Help: "Cache lookups by collection and result",
		}, []string{"collection", "result"}),
		cacheWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_cache_write_failures_total",
			Help: "Swallowed cache write failures by collection",
		}, []string{"collection"}),
		indexerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_indexer_events_total",
			Help: "Embedding indexer outcomes",
		}, []string{"result"}),
		backgroundFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_background_failures_total",
			Help: "Background task failures by task",
		}, []string{"task"}),
		droppedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "lingua_events_dropped_total",
			Help: "Message-created events dropped because the queue was full or stopped",
		}),
	}
}

// LLMRequest records one gateway call.
func (m *Metrics) LLMRequest(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, outcome).Inc()
	m.llmDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// LLMRetry records one retry.
func (m *Metrics) LLMRetry(operation string) {
	if m == nil {
		return
	}
	m.llmRetries.WithLabelValues(operation).Inc()
}

// CacheLookup records a lookup result (CacheHit, CacheMiss, ...).
func (m *Metrics) CacheLookup(collection, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(collection, result).Inc()
}

// CacheWriteFailure records a swallowed write failure.
func (m *Metrics) CacheWriteFailure(collection string) {
	if m == nil {
		return
	}
	m.cacheWriteFailures.WithLabelValues(collection).Inc()
}

// IndexerEvent records an indexing outcome: generated, skipped or failed.
func (m *Metrics) IndexerEvent(result string) {
	if m == nil {
		return
	}
	m.indexerEvents.WithLabelValues(result).Inc()
}

// BackgroundFailure records a failed or panicked background task.
func (m *Metrics) BackgroundFailure(task string) {
	if m == nil {
		return
	}
	m.backgroundFailures.WithLabelValues(task).Inc()
}

// EventDropped records a message-created event that was not enqueued.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
