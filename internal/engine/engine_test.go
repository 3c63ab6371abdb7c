package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/indexer"
	"github.com/scrypster/lingua/internal/metrics"
	"github.com/scrypster/lingua/pkg/types"
)

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	fn      func(msg types.Message) (indexer.Outcome, error)
}

func (f *fakeIndexer) IndexMessage(_ context.Context, msg types.Message) (indexer.Outcome, error) {
	f.mu.Lock()
	f.indexed = append(f.indexed, msg.ID)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	return indexer.OutcomeGenerated, nil
}

func (f *fakeIndexer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indexed...)
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) AutoExtract(_ context.Context, msg types.Message) (*types.StructuredData, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if msg.Text == "boom" {
		return nil, errors.New("extract failed")
	}
	if msg.Text == "none" {
		return nil, nil
	}
	return &types.StructuredData{MessageID: msg.ID, Type: "event", Confidence: 0.9}, nil
}

func (f *fakeExtractor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func newTestEngine(t *testing.T, ix Indexer, cfg Config, opts ...Option) (*Engine, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts = append([]Option{WithMetrics(metrics.New(reg))}, opts...)
	eng, err := New(ix, cfg, opts...)
	require.NoError(t, err)
	return eng, reg
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumWorkers = 1
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestPublish_IndexesAndExtracts(t *testing.T) {
	ix := &fakeIndexer{}
	ex := &fakeExtractor{}
	eng, _ := newTestEngine(t, ix, testConfig(), WithExtractor(ex))

	indexed := make(chan string, 1)
	extracted := make(chan *types.StructuredData, 1)
	eng.SetOnIndexed(func(msg types.Message, outcome indexer.Outcome) {
		assert.Equal(t, indexer.OutcomeGenerated, outcome)
		indexed <- msg.ID
	})
	eng.SetOnExtracted(func(_ types.Message, data *types.StructuredData) {
		extracted <- data
	})

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer func() { _ = eng.Shutdown(ctx) }()

	assert.True(t, eng.PublishMessageCreated(types.Message{ID: "m1", Text: "lunch at 12?"}))

	select {
	case id := <-indexed:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout: onIndexed callback never fired")
	}
	select {
	case data := <-extracted:
		assert.Equal(t, "m1", data.MessageID)
		assert.Equal(t, "event", data.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout: onExtracted callback never fired")
	}
}

func TestPublish_AutoExtractDisabled(t *testing.T) {
	ix := &fakeIndexer{}
	ex := &fakeExtractor{}
	cfg := testConfig()
	cfg.AutoExtract = false
	eng, _ := newTestEngine(t, ix, cfg, WithExtractor(ex))

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	require.True(t, eng.PublishMessageCreated(types.Message{ID: "m1", Text: "lunch at 12?"}))
	require.NoError(t, eng.Shutdown(ctx))

	assert.Equal(t, []string{"m1"}, ix.ids())
	assert.Zero(t, ex.count())
}

func TestWorker_IsolatesFailures(t *testing.T) {
	ix := &fakeIndexer{fn: func(msg types.Message) (indexer.Outcome, error) {
		switch msg.ID {
		case "panic":
			panic("indexer exploded")
		case "err":
			return 0, errors.New("embed failed")
		}
		return indexer.OutcomeGenerated, nil
	}}
	ex := &fakeExtractor{}
	eng, reg := newTestEngine(t, ix, testConfig(), WithExtractor(ex))

	var (
		mu        sync.Mutex
		extracted []string
	)
	eng.SetOnExtracted(func(msg types.Message, _ *types.StructuredData) {
		mu.Lock()
		defer mu.Unlock()
		extracted = append(extracted, msg.ID)
	})

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	for _, msg := range []types.Message{
		{ID: "panic", Text: "at 5"},
		{ID: "err", Text: "boom"},
		{ID: "ok", Text: "none"},
		{ID: "last", Text: "at 6"},
	} {
		require.True(t, eng.PublishMessageCreated(msg))
	}
	require.NoError(t, eng.Shutdown(ctx))

	assert.Equal(t, []string{"panic", "err", "ok", "last"}, ix.ids(), "the worker survives a panic")
	assert.Equal(t, 4, ex.count(), "extraction runs even when indexing failed")
	mu.Lock()
	assert.Equal(t, []string{"panic", "last"}, extracted)
	mu.Unlock()
	// panic + index error + extract error
	assert.Equal(t, 3.0, counterValue(t, reg, "lingua_background_failures_total"))
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	picked := make(chan struct{}, 1)
	ix := &fakeIndexer{fn: func(types.Message) (indexer.Outcome, error) {
		select {
		case picked <- struct{}{}:
		default:
		}
		<-release
		return indexer.OutcomeGenerated, nil
	}}
	cfg := testConfig()
	cfg.QueueSize = 1
	eng, reg := newTestEngine(t, ix, cfg)

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	require.True(t, eng.PublishMessageCreated(types.Message{ID: "m1", Text: "a"}))
	select {
	case <-picked:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout: worker never picked up the first job")
	}
	assert.True(t, eng.PublishMessageCreated(types.Message{ID: "m2", Text: "b"}))
	assert.False(t, eng.PublishMessageCreated(types.Message{ID: "m3", Text: "c"}))
	assert.Equal(t, 1, eng.QueueLength())
	assert.Equal(t, 1.0, counterValue(t, reg, "lingua_events_dropped_total"))

	close(release)
	require.NoError(t, eng.Shutdown(ctx))
	assert.Equal(t, []string{"m1", "m2"}, ix.ids())
}

func TestPublish_WhenNotRunning(t *testing.T) {
	eng, reg := newTestEngine(t, &fakeIndexer{}, testConfig())
	ctx := context.Background()

	assert.False(t, eng.PublishMessageCreated(types.Message{ID: "early"}))

	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Shutdown(ctx))
	assert.False(t, eng.PublishMessageCreated(types.Message{ID: "late"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "lingua_events_dropped_total"))
}

func TestShutdown_DrainsQueue(t *testing.T) {
	ix := &fakeIndexer{fn: func(types.Message) (indexer.Outcome, error) {
		time.Sleep(time.Millisecond)
		return indexer.OutcomeGenerated, nil
	}}
	cfg := testConfig()
	cfg.NumWorkers = 3
	eng, _ := newTestEngine(t, ix, cfg)

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	for i := range 20 {
		require.True(t, eng.PublishMessageCreated(types.Message{ID: fmt.Sprintf("m%d", i), Text: "x"}))
	}
	require.NoError(t, eng.Shutdown(ctx))
	assert.Len(t, ix.ids(), 20)
}

func TestShutdown_TimeoutCancelsInFlightJobs(t *testing.T) {
	cancelled := make(chan struct{})
	ix := &ctxIndexer{cancelled: cancelled}
	cfg := testConfig()
	cfg.ShutdownTimeout = 20 * time.Millisecond
	eng, _ := newTestEngine(t, ix, cfg)

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	require.True(t, eng.PublishMessageCreated(types.Message{ID: "slow", Text: "x"}))
	require.NoError(t, eng.Shutdown(ctx))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout: in-flight job was never cancelled")
	}
}

// ctxIndexer blocks until its context is cancelled.
type ctxIndexer struct {
	cancelled chan struct{}
}

func (c *ctxIndexer) IndexMessage(ctx context.Context, _ types.Message) (indexer.Outcome, error) {
	<-ctx.Done()
	close(c.cancelled)
	return 0, ctx.Err()
}

func TestLifecycle(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeIndexer{}, testConfig())
	ctx := context.Background()

	assert.Error(t, eng.Shutdown(ctx), "shutdown before start")
	require.NoError(t, eng.Start(ctx))
	assert.Error(t, eng.Start(ctx), "double start")
	require.NoError(t, eng.Shutdown(ctx))

	// Restart after a clean shutdown.
	require.NoError(t, eng.Start(ctx))
	assert.True(t, eng.PublishMessageCreated(types.Message{ID: "again", Text: "x"}))
	require.NoError(t, eng.Shutdown(ctx))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.NumWorkers = 0
	_, err = New(&fakeIndexer{}, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.QueueSize = 0
	_, err = New(&fakeIndexer{}, cfg)
	assert.Error(t, err)
}
