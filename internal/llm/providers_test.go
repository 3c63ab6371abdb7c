package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/config"
)

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"language":"fr"}`},
			"done":    true,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "tiny"})
	out, err := p.Chat(context.Background(), ChatRequest{
		Messages:  []ChatMessage{System("sys"), User("bonjour")},
		MaxTokens: 50,
		JSONMode:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"language":"fr"}`, out)
	assert.Equal(t, "tiny", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.EqualValues(t, 50, got.Options["num_predict"])
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		_, _ = w.Write([]byte(`{"embeddings":[[0.25,0.5,1]]}`))
	}))
	defer srv.Close()

	vec, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 1}, vec)
}

func TestOllamaProvider_StatusErrorsCarryCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}).Chat(context.Background(), ChatRequest{})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.Equal(t, classTransient, classify(err))
}

func TestOllamaProvider_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaProvider(OllamaConfig{BaseURL: url, Timeout: time.Second}).Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, classTransient, classify(err))
}

func TestOpenAIProvider_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hola"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	out, err := p.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{User("hello")}, JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "hola", out)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.5]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	vec, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.5}, vec)
}

func TestOpenAIProvider_APIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		want   errorClass
	}{
		{http.StatusUnauthorized, classAuth},
		{http.StatusBadRequest, classInvalid},
		{http.StatusTooManyRequests, classTransient},
		{http.StatusBadGateway, classTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			}))
			defer srv.Close()

			_, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}).
				Chat(context.Background(), ChatRequest{Messages: []ChatMessage{User("x")}})
			require.Error(t, err)
			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.want, classify(err))
		})
	}
}

func TestAnthropicProvider_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5-20251001",
			"content":[{"type":"text","text":"{\"ok\":"},{"type":"text","text":"true}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := p.Chat(context.Background(), ChatRequest{
		Messages: []ChatMessage{System("be terse"), User("hi")},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 2)
	assert.Equal(t, "be terse", system[0].(map[string]any)["text"])
	assert.EqualValues(t, 1024, body["max_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestAnthropicProvider_StatusError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropicProvider(AnthropicConfig{APIKey: "bad", BaseURL: srv.URL}).
		Chat(context.Background(), ChatRequest{Messages: []ChatMessage{User("hi")}})
	require.Error(t, err)
	assert.Equal(t, classAuth, classify(err))
	assert.Equal(t, 1, calls, "sdk retries are disabled")
}

func TestAnthropicProvider_EmbedUnsupported(t *testing.T) {
	_, err := NewAnthropicProvider(AnthropicConfig{}).Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingsUnsupported)
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "ollama"} {
		p, err := NewProvider(config.LLMConfig{Provider: name})
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := NewProvider(config.LLMConfig{Provider: "bogus"})
	assert.Error(t, err)

	_, err = NewEmbeddingProvider(config.LLMConfig{EmbeddingProvider: "anthropic"})
	assert.Error(t, err)
	p, err := NewEmbeddingProvider(config.LLMConfig{EmbeddingProvider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, classFatal, classify(ErrCircuitOpen))
	assert.Equal(t, classTransient, classify(context.DeadlineExceeded))
	assert.Equal(t, classFatal, classify(errors.New("boom")))
	assert.Equal(t, classFatal, classify(&ProviderError{StatusCode: 302}))
	assert.Equal(t, classTransient, classify(&ProviderError{StatusCode: 408}))
	assert.Equal(t, classTransient, classify(&ProviderError{Message: "reset"}))
}
