// Package assistant is the retrieval-augmented conversational assistant. It
// grounds answers in the caller's own messages found by semantic search and
// summarizes conversations from their most recent messages.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/llm"
	"github.com/scrypster/lingua/internal/search"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

const (
	// ContextLimit is the number of search hits assembled into a prompt.
	ContextLimit = 5
	// SummaryWindow is the number of most recent messages summarized.
	SummaryWindow = 50
	// MaxQueryLength bounds an assistant query in characters.
	MaxQueryLength = 2000
)

const persona = `You are Lingua, a helpful assistant inside a multilingual messaging app.
You help users understand their conversations, languages and cultural nuances.
When context from the user's messages is provided, ground your answer in it and do not invent messages.
If the context does not answer the question, say so briefly and answer from general knowledge.
Answer in the language of the question.`

const summarySystem = `You summarize chat conversations.
Write a concise summary (at most 5 sentences) of the main topics, decisions and open questions.
Refer to participants as they are labelled. Write in the dominant language of the conversation.`

// Gateway is the part of the model gateway the assistant needs.
type Gateway interface {
	Invoke(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Searcher ranks the caller's messages against a query. *search.Engine
// implements it.
type Searcher interface {
	Search(ctx context.Context, query string, scope types.AccessScope, limit int) ([]types.SearchResult, error)
}

var (
	_ Gateway  = (*llm.Gateway)(nil)
	_ Searcher = (*search.Engine)(nil)
)

// Config configures an Assistant.
type Config struct {
	Gateway  Gateway
	Search   Searcher
	Messages storage.MessageStore

	// Model overrides the provider's default chat model when set.
	Model  string
	Logger *slog.Logger
}

// Assistant answers queries and summarizes conversations. Nothing it
// produces is cached.
type Assistant struct {
	gateway  Gateway
	search   Searcher
	messages storage.MessageStore
	model    string
	logger   *slog.Logger
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Gateway == nil || cfg.Search == nil || cfg.Messages == nil {
		return nil, errors.New("assistant: gateway, search and message store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		gateway:  cfg.Gateway,
		search:   cfg.Search,
		messages: cfg.Messages,
		model:    cfg.Model,
		logger:   cfg.Logger,
	}, nil
}

// Context is retrieval context assembled for a prompt. Sources lists the
// message IDs behind Text and is nil when nothing relevant was found.
type Context struct {
	Text    string
	Sources []string
}

// QueryRequest is the payload of queryAssistant.
type QueryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
}

// SummarizeRequest is the payload of summarizeConversation.
type SummarizeRequest struct {
	ConversationID string `json:"conversationId"`
}

// AssembleContext searches the caller's scope, narrowed to conversationID
// when set, and formats the top hits as numbered, similarity-annotated
// snippets.
func (a *Assistant) AssembleContext(ctx context.Context, conversationID, query string) (Context, error) {
	const op = "assistant.AssembleContext"
	userID, err := auth.Require(ctx, op)
	if err != nil {
		return Context{}, err
	}
	scope, err := search.ResolveScope(ctx, a.messages, userID, strings.TrimSpace(conversationID))
	if err != nil {
		return Context{}, err
	}
	hits, err := a.search.Search(ctx, query, scope, ContextLimit)
	if err != nil {
		return Context{}, err
	}
	return formatContext(hits), nil
}

func formatContext(hits []types.SearchResult) Context {
	if len(hits) == 0 {
		return Context{}
	}
	var (
		b       strings.Builder
		sources = make([]string, 0, len(hits))
	)
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] (similarity %.2f) %s", i+1, h.Similarity, h.Text)
		sources = append(sources, h.ID)
	}
	return Context{Text: b.String(), Sources: sources}
}

// Query answers req.Query using the caller's messages as context.
func (a *Assistant) Query(ctx context.Context, req QueryRequest) (*types.AssistantResponse, error) {
	const op = "assistant.Query"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.Invalid(op, "query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, apperr.Invalid(op, "query exceeds %d characters", MaxQueryLength)
	}

	rc, err := a.AssembleContext(ctx, req.ConversationID, query)
	if err != nil {
		return nil, err
	}

	messages := []llm.ChatMessage{llm.System(persona)}
	if rc.Text != "" {
		messages = append(messages, llm.System("Relevant messages from the user's conversations:\n"+rc.Text))
	}
	messages = append(messages, llm.User(query))

	out, err := a.gateway.Invoke(ctx, llm.ChatRequest{
		Operation:   "assistant_query",
		Model:       a.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, classify(op, err)
	}

	a.logger.Debug("assistant: answered query", "sources", len(rc.Sources))
	return &types.AssistantResponse{Response: strings.TrimSpace(out), Sources: rc.Sources}, nil
}

// Summarize summarizes the latest SummaryWindow messages of a conversation
// the caller participates in. An empty conversation yields an empty summary
// without a model call.
func (a *Assistant) Summarize(ctx context.Context, req SummarizeRequest) (*types.ConversationSummary, error) {
	const op = "assistant.Summarize"
	userID, err := auth.Require(ctx, op)
	if err != nil {
		return nil, err
	}
	conv := strings.TrimSpace(req.ConversationID)
	if conv == "" {
		return nil, apperr.Invalid(op, "conversationId is required")
	}
	if _, err := search.ResolveScope(ctx, a.messages, userID, conv); err != nil {
		return nil, err
	}

	recent, err := a.messages.RecentMessages(ctx, conv, SummaryWindow)
	if err != nil {
		return nil, apperr.Internal(op, "failed to load messages", err)
	}

	var transcript strings.Builder
	count := 0
	for _, m := range recent {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		count++
		who := m.SenderID
		if who == userID {
			who = "Me"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", who, text)
	}
	if count == 0 {
		return &types.ConversationSummary{}, nil
	}

	out, err := a.gateway.Invoke(ctx, llm.ChatRequest{
		Operation:   "summarize",
		Model:       a.model,
		Messages:    []llm.ChatMessage{llm.System(summarySystem), llm.User("Conversation:\n" + transcript.String())},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return &types.ConversationSummary{Summary: strings.TrimSpace(out), MessageCount: count}, nil
}

func classify(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(op, err)
	}
	return apperr.Internal(op, "assistant request failed", err)
}
