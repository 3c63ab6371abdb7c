// Package features implements the AI feature pipelines: language detection,
// translation, cultural context, formality analysis and adjustment, slang and
// idiom detection, phrase explanation, smart replies and structured-data
// extraction.
//
// Every pipeline follows the same sequence: authenticate the caller, validate
// the input, derive a cache key from the feature name and normalized inputs,
// serve a cache hit without touching the model, and otherwise prompt the
// model, coerce its JSON reply into the feature's result type and cache it.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/internal/llm"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// Gateway is the part of the model gateway the pipelines need.
type Gateway interface {
	InvokeJSON(ctx context.Context, req llm.ChatRequest, dst any) error
}

var _ Gateway = (*llm.Gateway)(nil)

// Deps are the collaborators of a Service.
type Deps struct {
	Cache    *cache.Store
	Gateway  Gateway
	Messages storage.MessageStore

	// Policy supplies per-feature TTLs and length limits. Nil uses
	// config.DefaultFeaturePolicy.
	Policy config.FeaturePolicy

	Logger *slog.Logger

	// Model overrides the provider's default chat model when set.
	Model string
}

// Service runs the feature pipelines. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	cache    *cache.Store
	gateway  Gateway
	messages storage.MessageStore
	policy   atomic.Pointer[config.FeaturePolicy]
	logger   *slog.Logger
	model    string
}

// New creates a Service.
func New(deps Deps) (*Service, error) {
	if deps.Cache == nil {
		return nil, errors.New("features: cache store is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("features: model gateway is required")
	}
	if deps.Messages == nil {
		return nil, errors.New("features: message store is required")
	}
	if deps.Policy == nil {
		deps.Policy = config.DefaultFeaturePolicy()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Service{
		cache:    deps.Cache,
		gateway:  deps.Gateway,
		messages: deps.Messages,
		logger:   deps.Logger,
		model:    deps.Model,
	}
	s.policy.Store(&deps.Policy)
	return s, nil
}

// SetPolicy replaces the feature policy. Requests already past their length
// check keep the rule they started with.
func (s *Service) SetPolicy(p config.FeaturePolicy) {
	if p == nil {
		p = config.DefaultFeaturePolicy()
	}
	s.policy.Store(&p)
}

func (s *Service) rule(feature string) config.FeatureRule {
	return (*s.policy.Load()).Rule(feature)
}

// pipeline is one cached feature computation.
type pipeline[T any] struct {
	op      string // apperr op, e.g. "features.DetectLanguage"
	feature string // cache collection and first key part
	key     []string
	compute func(ctx context.Context) (T, error)
}

// run serves p from the cache or computes, caches and returns it. The bool
// reports a cache hit.
func run[T any](ctx context.Context, s *Service, p pipeline[T]) (T, bool, error) {
	key := cache.GenerateKey(append([]string{p.feature}, p.key...)...)
	ttl := s.rule(p.feature).TTL

	v, hit, err := cache.GetOrCompute(ctx, s.cache, p.feature, key, ttl, p.compute)
	if err != nil {
		var zero T
		return zero, false, classify(p.op, err)
	}
	if hit {
		s.logger.Debug("features: cache hit", "op", p.op, "collection", p.feature)
	}
	return v, hit, nil
}

// invoke sends a JSON-mode prompt through the gateway.
func (s *Service) invoke(ctx context.Context, operation, system, user string, temperature float64, maxTokens int, dst any) error {
	return s.gateway.InvokeJSON(ctx, llm.ChatRequest{
		Operation:   operation,
		Model:       s.model,
		Messages:    []llm.ChatMessage{llm.System(system), llm.User(user)},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, dst)
}

// classify keeps classified errors and maps everything else onto the
// taxonomy.
func classify(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(op, err)
	}
	return apperr.Internal(op, "feature computation failed", err)
}

// authorizeConversation checks that userID participates in conversationID.
func (s *Service) authorizeConversation(ctx context.Context, op, userID, conversationID string) error {
	ok, err := s.messages.IsParticipant(ctx, conversationID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(op, "conversation %s not found", conversationID)
	}
	if err != nil {
		return apperr.Internal(op, "failed to check conversation membership", err)
	}
	if !ok {
		return apperr.Denied(op, "not a participant of conversation %s", conversationID)
	}
	return nil
}

// loadMessage authorizes the caller and returns the message, which must
// belong to conversationID.
func (s *Service) loadMessage(ctx context.Context, op, userID, conversationID, messageID string) (*types.Message, error) {
	if err := s.authorizeConversation(ctx, op, userID, conversationID); err != nil {
		return nil, err
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(op, "message %s not found", messageID)
	}
	if err != nil {
		return nil, apperr.Internal(op, "failed to load message", err)
	}
	if msg.ConversationID != conversationID {
		return nil, apperr.NotFound(op, "message %s not found in conversation %s", messageID, conversationID)
	}
	return msg, nil
}

// checkText validates a free-form text field against the feature's length
// limit and returns it trimmed.
func (s *Service) checkText(op, field, text, feature string) (string, error) {
	text = strings.TrimSpace(text)
	limit := s.rule(feature).MaxLength
	if err := validate.Var(text, fmt.Sprintf("required,max=%d", limit)); err != nil {
		return "", invalid(op, field, err)
	}
	return text, nil
}

// clamp01 bounds a model-reported confidence to [0, 1].
func clamp01(f float64) float64 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// nonNil drops blank entries and replaces nil with an empty slice so
// results encode as [].
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
