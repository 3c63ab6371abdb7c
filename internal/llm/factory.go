package llm

import (
	"fmt"

	"github.com/scrypster/lingua/internal/config"
)

// NewProvider creates the chat provider selected by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.OpenAIBaseURL,
			Timeout:        cfg.Timeout,
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			BaseURL:        cfg.OllamaURL,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingProvider creates the embedding provider selected by
// cfg.EmbeddingProvider. Anthropic is rejected because it has no
// embeddings API.
func NewEmbeddingProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.OpenAIBaseURL,
			Timeout:        cfg.Timeout,
		}), nil
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			BaseURL:        cfg.OllamaURL,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.EmbeddingProvider)
	}
}
