package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/metrics"
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// Chat serves Invoke and InvokeJSON. Embedder serves Embed; when nil,
	// Chat is used for embeddings too.
	Chat     Provider
	Embedder Provider

	// MaxAttempts per call (default 3). Before attempt n (n >= 2) the
	// gateway sleeps BaseDelay * 2^(n-2).
	MaxAttempts int
	BaseDelay   time.Duration // default 1s

	// Timeout bounds each attempt; zero leaves only the caller's deadline.
	Timeout time.Duration

	// EmbeddingDimension, when positive, rejects vectors of any other length.
	EmbeddingDimension int

	// Breaker guards provider calls; nil uses a default breaker per gateway.
	Breaker *CircuitBreaker

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Gateway is the single path from features to model providers. It owns
// retry with exponential backoff, per-attempt deadlines, error
// classification and the circuit breaker.
type Gateway struct {
	chat        Provider
	embedder    Provider
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	dimension   int
	breaker     *CircuitBreaker
	logger      *slog.Logger
	metrics     *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway validates cfg and applies defaults.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Chat == nil {
		return nil, errors.New("llm: gateway requires a chat provider")
	}
	if cfg.Embedder == nil {
		cfg.Embedder = cfg.Chat
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay < 0 {
		return nil, errors.New("llm: base delay cannot be negative")
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(CircuitBreakerConfig{Name: cfg.Chat.Name(), Logger: cfg.Logger})
	}

	return &Gateway{
		chat:        cfg.Chat,
		embedder:    cfg.Embedder,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		timeout:     cfg.Timeout,
		dimension:   cfg.EmbeddingDimension,
		breaker:     cfg.Breaker,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sleep:       sleepContext,
	}, nil
}

// Invoke sends req and returns the non-empty completion text.
func (g *Gateway) Invoke(ctx context.Context, req ChatRequest) (string, error) {
	op := req.Operation
	if op == "" {
		op = "chat"
	}
	return call(ctx, g, op, func(ctx context.Context) (string, error) {
		out, err := g.chat.Chat(ctx, req)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", errEmptyResponse
		}
		return out, nil
	})
}

// InvokeJSON sends req in JSON mode and decodes the reply into dst. A reply
// that is not a JSON object is Internal and is not retried.
func (g *Gateway) InvokeJSON(ctx context.Context, req ChatRequest, dst any) error {
	req.JSONMode = true
	raw, err := g.Invoke(ctx, req)
	if err != nil {
		return err
	}
	if err := DecodeJSON(raw, dst); err != nil {
		g.logger.Warn("llm: malformed JSON response",
			"operation", req.Operation, "error", err, "response_len", len(raw))
		return apperr.Internal("llm."+req.Operation, "model returned malformed output", err)
	}
	return nil
}

// Embed returns the embedding for text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	return call(ctx, g, "embed", func(ctx context.Context) ([]float32, error) {
		vec, err := g.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, errEmptyResponse
		}
		if g.dimension > 0 && len(vec) != g.dimension {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", errBadDimension, len(vec), g.dimension)
		}
		return vec, nil
	})
}

var (
	errEmptyResponse = errors.New("provider returned empty content")
	errBadDimension  = errors.New("provider returned wrong embedding dimension")
)

// call runs fn through the breaker with retries and maps the final failure
// onto the apperr taxonomy.
func call[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	opName := "llm." + op

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			g.metrics.LLMRetry(op)
			delay := g.baseDelay << (attempt - 2)
			g.logger.Debug("llm: retrying", "operation", op, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := g.sleep(ctx, delay); err != nil {
				g.metrics.LLMRequest(op, "cancelled", time.Since(start))
				return zero, callerDone(ctx, opName)
			}
		}

		result, err := tryOnce(ctx, g, fn)
		if err == nil {
			g.metrics.LLMRequest(op, "ok", time.Since(start))
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			g.metrics.LLMRequest(op, "cancelled", time.Since(start))
			return zero, callerDone(ctx, opName)
		}

		if errors.Is(err, errEmptyResponse) || errors.Is(err, errBadDimension) {
			g.metrics.LLMRequest(op, "invalid_response", time.Since(start))
			return zero, apperr.Internal(opName, "model returned an unusable response", err)
		}

		switch class := classify(err); class {
		case classAuth:
			g.logger.Error("llm: provider rejected credentials", "operation", op, "error", err)
			g.metrics.LLMRequest(op, class.String(), time.Since(start))
			return zero, apperr.E(apperr.KindUnauthenticated, opName, "model provider rejected credentials", err)
		case classInvalid:
			g.metrics.LLMRequest(op, class.String(), time.Since(start))
			return zero, apperr.E(apperr.KindInvalidArgument, opName, "model provider rejected the request", err)
		case classFatal:
			g.metrics.LLMRequest(op, class.String(), time.Since(start))
			return zero, apperr.Internal(opName, "model provider unavailable", err)
		}
		g.logger.Warn("llm: transient failure", "operation", op, "attempt", attempt, "error", err)
	}

	g.metrics.LLMRequest(op, "exhausted", time.Since(start))
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return zero, apperr.Timeout(opName, lastErr)
	}
	return zero, apperr.Internal(opName,
		fmt.Sprintf("model provider failed after %d attempts", g.maxAttempts), lastErr)
}

// tryOnce runs one provider call under the per-attempt deadline.
func tryOnce[T any](ctx context.Context, g *Gateway, fn func(context.Context) (T, error)) (T, error) {
	actx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.breaker.Execute(ctx, func() (any, error) {
		return fn(actx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

func callerDone(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(op, ctx.Err())
	}
	return apperr.Internal(op, "request cancelled", ctx.Err())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
