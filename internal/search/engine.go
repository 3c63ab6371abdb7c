// Package search ranks stored message embeddings against a query by cosine
// similarity. Every read of the corpus is restricted to the caller's
// AccessScope.
package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

const (
	// DefaultLimit is used when a search asks for no particular size.
	DefaultLimit = 10
	// MaxLimit caps the number of results of one search.
	MaxLimit = 50
	// MaxQueryLength bounds the query text in characters.
	MaxQueryLength = 2000
)

// Embedder produces the query embedding. *llm.Gateway implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures an Engine.
type Config struct {
	Embeddings storage.EmbeddingStore
	Messages   storage.MessageStore
	Embedder   Embedder

	// MaxCandidatesPerConversation bounds how many of the newest records of
	// each conversation are scored. Zero scores every record.
	MaxCandidatesPerConversation int

	Logger *slog.Logger
}

// Engine runs scoped semantic searches.
type Engine struct {
	embeddings    storage.EmbeddingStore
	messages      storage.MessageStore
	embedder      Embedder
	maxCandidates int
	logger        *slog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Embeddings == nil || cfg.Messages == nil || cfg.Embedder == nil {
		return nil, errors.New("search: embedding store, message store and embedder are required")
	}
	if cfg.MaxCandidatesPerConversation < 0 {
		cfg.MaxCandidatesPerConversation = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		embeddings:    cfg.Embeddings,
		messages:      cfg.Messages,
		embedder:      cfg.Embedder,
		maxCandidates: cfg.MaxCandidatesPerConversation,
		logger:        cfg.Logger,
	}, nil
}

// Request is the payload of semanticSearch. An empty ConversationID searches
// every conversation the caller participates in.
type Request struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// Response is the result of semanticSearch.
type Response struct {
	Results []types.SearchResult `json:"results"`
}

// SemanticSearch authenticates the caller, resolves their scope and searches
// it.
func (e *Engine) SemanticSearch(ctx context.Context, req Request) (*Response, error) {
	const op = "search.SemanticSearch"
	userID, err := auth.Require(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := checkQuery(op, req.Query); err != nil {
		return nil, err
	}
	scope, err := ResolveScope(ctx, e.messages, userID, strings.TrimSpace(req.ConversationID))
	if err != nil {
		return nil, err
	}
	results, err := e.Search(ctx, req.Query, scope, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{Results: results}, nil
}

// ResolveScope returns the conversations userID may search. An explicit
// conversationID narrows the scope to that conversation after checking
// participation.
func ResolveScope(ctx context.Context, messages storage.MessageStore, userID, conversationID string) (types.AccessScope, error) {
	const op = "search.ResolveScope"
	scope := types.AccessScope{UserID: userID}

	if conversationID != "" {
		ok, err := messages.IsParticipant(ctx, conversationID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return scope, apperr.NotFound(op, "conversation %s not found", conversationID)
		}
		if err != nil {
			return scope, apperr.Internal(op, "failed to check conversation membership", err)
		}
		if !ok {
			return scope, apperr.Denied(op, "not a participant of conversation %s", conversationID)
		}
		scope.ConversationIDs = []string{conversationID}
		return scope, nil
	}

	convs, err := messages.ListConversationsForUser(ctx, userID)
	if err != nil {
		return scope, apperr.Internal(op, "failed to list conversations", err)
	}
	scope.ConversationIDs = convs
	return scope, nil
}

// Search embeds query and returns the top limit records inside scope by
// descending cosine similarity. Ties keep candidate order. limit <= 0 means
// DefaultLimit and larger values are capped at MaxLimit.
func (e *Engine) Search(ctx context.Context, query string, scope types.AccessScope, limit int) ([]types.SearchResult, error) {
	const op = "search.Search"
	if err := checkQuery(op, query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	if scope.Empty() {
		return []types.SearchResult{}, nil
	}

	qvec, err := e.embedder.Embed(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, classify(op, "failed to embed query", err)
	}

	candidates, err := e.embeddings.ListByParents(ctx, scope.ConversationIDs, e.maxCandidates)
	if err != nil {
		return nil, classify(op, "failed to load embeddings", err)
	}

	allowed := make(map[string]struct{}, len(scope.ConversationIDs))
	for _, id := range scope.ConversationIDs {
		allowed[id] = struct{}{}
	}

	results := make([]types.SearchResult, 0, len(candidates))
	for _, rec := range candidates {
		if _, ok := allowed[rec.ParentID]; !ok {
			e.logger.Warn("search: dropping out-of-scope record", "record_id", rec.ID, "parent_id", rec.ParentID)
			continue
		}
		sim, err := CosineSimilarity(qvec, rec.Vector)
		if err != nil {
			return nil, apperr.Internal(op, "embedding dimension mismatch", err)
		}
		results = append(results, types.SearchResult{
			ID:         rec.ID,
			ParentID:   rec.ParentID,
			Text:       rec.Text,
			Similarity: sim,
			Language:   rec.Language,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.logger.Debug("search: ranked candidates",
		"user_id", scope.UserID,
		"conversations", len(scope.ConversationIDs),
		"candidates", len(candidates),
		"returned", len(results))
	return results, nil
}

func checkQuery(op, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return apperr.Invalid(op, "query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return apperr.Invalid(op, "query exceeds %d characters", MaxQueryLength)
	}
	return nil
}

func classify(op, message string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(op, err)
	}
	return apperr.Internal(op, message, err)
}
