package llm

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/apperr"
)

// scriptedProvider replays one scripted reply per call.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	last    ChatRequest
}

type reply struct {
	text string
	vec  []float32
	err  error
}

func (p *scriptedProvider) next() reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.replies) == 0 {
		return reply{err: errors.New("script exhausted")}
	}
	r := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return r
}

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (string, error) {
	p.mu.Lock()
	p.last = req
	p.mu.Unlock()
	r := p.next()
	return r.text, r.err
}

func (p *scriptedProvider) Embed(context.Context, string) ([]float32, error) {
	r := p.next()
	return r.vec, r.err
}

func (p *scriptedProvider) Name() string { return "scripted" }

func status(code int) error {
	return &ProviderError{Provider: "scripted", StatusCode: code, Message: "scripted"}
}

// newTestGateway records sleeps instead of sleeping.
func newTestGateway(t *testing.T, p Provider, mutate ...func(*GatewayConfig)) (*Gateway, *[]time.Duration) {
	t.Helper()
	cfg := GatewayConfig{Chat: p, BaseDelay: time.Second}
	for _, m := range mutate {
		m(&cfg)
	}
	g, err := NewGateway(cfg)
	require.NoError(t, err)
	var sleeps []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return g, &sleeps
}

func TestGateway_SuccessFirstAttempt(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "hola"}}}
	g, sleeps := newTestGateway(t, p)

	out, err := g.Invoke(context.Background(), ChatRequest{Operation: "translate", Messages: []ChatMessage{User("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hola", out)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *sleeps)
}

func TestGateway_RetriesTransientThenSucceeds(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: status(503)}, {err: status(429)}, {text: "ok"}}}
	g, sleeps := newTestGateway(t, p)

	out, err := g.Invoke(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestGateway_ExhaustionIsInternalAfterExactlyThreeAttempts(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: status(500)}}}
	g, sleeps := newTestGateway(t, p)

	_, err := g.Invoke(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 3, p.calls)
	assert.Len(t, *sleeps, 2)
}

func TestGateway_NetworkErrorsAreTransient(t *testing.T) {
	netErr := &ProviderError{Provider: "scripted", Message: "dial", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}
	p := &scriptedProvider{replies: []reply{{err: netErr}, {text: "ok"}}}
	g, _ := newTestGateway(t, p)

	out, err := g.Invoke(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, p.calls)
}

func TestGateway_FailFastClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unauthorized", status(401), apperr.KindUnauthenticated},
		{"forbidden", status(403), apperr.KindUnauthenticated},
		{"bad request", status(400), apperr.KindInvalidArgument},
		{"not found", status(404), apperr.KindInvalidArgument},
		{"unprocessable", status(422), apperr.KindInvalidArgument},
		{"unknown error", errors.New("weird"), apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{replies: []reply{{err: tt.err}}}
			g, sleeps := newTestGateway(t, p)

			_, err := g.Invoke(context.Background(), ChatRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.Equal(t, 1, p.calls, "no retry")
			assert.Empty(t, *sleeps)
		})
	}
}

func TestGateway_EmptyContentIsInternalWithoutRetry(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "   "}}}
	g, _ := newTestGateway(t, p)

	_, err := g.Invoke(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestGateway_DeadlineOnFinalAttemptIsTimeout(t *testing.T) {
	deadline := &ProviderError{Provider: "scripted", Message: "slow", Err: context.DeadlineExceeded}
	p := &scriptedProvider{replies: []reply{{err: deadline}}}
	g, _ := newTestGateway(t, p)

	_, err := g.Invoke(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.Equal(t, 3, p.calls)
}

func TestGateway_PerAttemptTimeout(t *testing.T) {
	slow := providerFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", &ProviderError{Provider: "slow", Message: "timeout", Err: ctx.Err()}
	})
	g, _ := newTestGateway(t, slow, func(c *GatewayConfig) {
		c.Timeout = 5 * time.Millisecond
		c.MaxAttempts = 2
	})

	_, err := g.Invoke(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestGateway_CallerCancellationStops(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: status(503)}}}
	g, _ := newTestGateway(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	g.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := g.Invoke(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestGateway_InvokeJSON(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "```json\n{\"language\":\"es\"}\n```"}}}
	g, _ := newTestGateway(t, p)

	var out struct {
		Language string `json:"language"`
	}
	require.NoError(t, g.InvokeJSON(context.Background(), ChatRequest{Operation: "detect_language"}, &out))
	assert.Equal(t, "es", out.Language)
	assert.True(t, p.last.JSONMode)
}

func TestGateway_InvokeJSONMalformedIsInternal(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "I cannot do that"}}}
	g, _ := newTestGateway(t, p)

	var out map[string]any
	err := g.InvokeJSON(context.Background(), ChatRequest{}, &out)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestGateway_Embed(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{vec: []float32{1, 2, 3}}}}
	g, _ := newTestGateway(t, p, func(c *GatewayConfig) { c.EmbeddingDimension = 3 })

	vec, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestGateway_EmbedRejectsWrongDimensionAndEmpty(t *testing.T) {
	for _, r := range []reply{{vec: []float32{1, 2}}, {vec: nil}} {
		p := &scriptedProvider{replies: []reply{r}}
		g, _ := newTestGateway(t, p, func(c *GatewayConfig) { c.EmbeddingDimension = 3 })

		_, err := g.Embed(context.Background(), "hello")
		require.Error(t, err)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
		assert.Equal(t, 1, p.calls)
	}
}

func TestGateway_UsesSeparateEmbedder(t *testing.T) {
	chat := &scriptedProvider{replies: []reply{{text: "hi"}}}
	emb := &scriptedProvider{replies: []reply{{vec: []float32{0.5}}}}
	g, _ := newTestGateway(t, chat, func(c *GatewayConfig) { c.Embedder = emb })

	_, err := g.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 0, chat.calls)
	assert.Equal(t, 1, emb.calls)
}

func TestGateway_OpenCircuitFailsFast(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: status(503)}}}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour})
	g, _ := newTestGateway(t, p, func(c *GatewayConfig) { c.Breaker = breaker })

	_, err := g.Invoke(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, "open", breaker.State())
	assert.Equal(t, 2, p.calls, "third attempt rejected by the open circuit")

	_, err = g.Invoke(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, p.calls)
}

func TestCircuitBreaker_IgnoresCallerErrors(t *testing.T) {
	breaker := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour})
	for i := 0; i < 5; i++ {
		_, _ = breaker.Execute(context.Background(), func() (any, error) { return nil, status(400) })
	}
	assert.Equal(t, "closed", breaker.State())
}

func TestNewGateway_RequiresChat(t *testing.T) {
	_, err := NewGateway(GatewayConfig{})
	assert.Error(t, err)
}

type providerFunc func(ctx context.Context) (string, error)

func (f providerFunc) Chat(ctx context.Context, _ ChatRequest) (string, error) { return f(ctx) }
func (f providerFunc) Embed(context.Context, string) ([]float32, error)        { return nil, nil }
func (f providerFunc) Name() string                                            { return "func" }
