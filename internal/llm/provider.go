// Package llm is the model gateway: provider adapters for chat completion
// and embeddings, plus the retrying, classifying Gateway every feature calls
// through.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmbeddingsUnsupported is returned by providers without an embeddings API.
var ErrEmbeddingsUnsupported = errors.New("provider does not support embeddings")

// ChatMessage is one turn of a chat prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a provider-neutral chat completion request.
type ChatRequest struct {
	// Operation names the calling feature for logs and metrics.
	Operation string

	// Model overrides the provider's configured model when set.
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int

	// JSONMode asks the provider to return a single JSON object.
	JSONMode bool
}

// Provider is a model backend.
type Provider interface {
	// Chat returns the completion text for req.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the provider in logs.
	Name() string
}

// ProviderError is an HTTP-level failure reported by a provider. StatusCode
// is 0 when the request never produced a response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// System builds a system message.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}
