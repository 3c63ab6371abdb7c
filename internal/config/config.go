// Package config provides configuration management for lingua.
// It loads settings from environment variables with the LINGUA_ prefix and
// provides sensible defaults for all configuration options. Per-feature cache
// policy can additionally be loaded from a YAML file (see FeaturePolicy).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the lingua service.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Security SecurityConfig
	Engine   EngineConfig
	Search   SearchConfig
	Logging  LoggingConfig
	Features FeaturesConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6464)
	Host string // Server host (default: 127.0.0.1)

	// RateLimit is the sustained process-wide request rate (req/s) and
	// RateBurst the burst size. This protects the upstream model provider; it
	// is not per-tenant quota enforcement.
	RateLimit float64
	RateBurst int
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string // sqlite or postgres (default: sqlite)
	CacheEngine string // sqlite, postgres or badger (default: same as Engine)
	DataPath    string // directory for sqlite/badger files (default: ./data)
	PostgresDSN string // required when either engine is postgres
}

// LLMConfig contains model provider configuration.
type LLMConfig struct {
	Provider           string // chat provider: openai, ollama, anthropic (default: openai)
	EmbeddingProvider  string // embedding provider: openai, ollama (default: openai)
	Model              string // chat model (default: gpt-4o-mini)
	EmbeddingModel     string // embedding model (default: text-embedding-3-small)
	EmbeddingDimension int    // fixed vector dimension D (default: 1536)
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	AnthropicAPIKey    string
	OllamaURL          string // default: http://localhost:11434

	MaxAttempts int           // attempts per gateway call (default: 3)
	BaseDelay   time.Duration // backoff before the first retry, doubled each retry (default: 1s)
	Timeout     time.Duration // per-attempt deadline (default: 60s)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	Mode     string // development or production (default: development)
	APIToken string // bearer token required in production mode
}

// EngineConfig contains background event-processing settings.
type EngineConfig struct {
	Workers             int           // message-created workers (default: 2)
	QueueSize           int           // buffered events (default: 1000)
	ShutdownTimeout     time.Duration // drain timeout (default: 30s)
	BackfillConcurrency int           // parallel embeddings during backfill (default: 4)
	AutoExtract         bool          // run structured-data extraction on new messages (default: true)
}

// SearchConfig contains semantic search settings.
type SearchConfig struct {
	// MaxCandidatesPerConversation bounds the number of embedding records
	// loaded per conversation for one query, newest first.
	MaxCandidatesPerConversation int
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string // debug, info, warn, error (default: info)
	Format string // text or json (default: text)
}

// FeaturesConfig points at the optional YAML feature policy file.
type FeaturesConfig struct {
	PolicyPath string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the LINGUA_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that engine and provider names are known and that numeric
// settings are usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine))
	}
	switch c.Storage.CacheEngine {
	case "sqlite", "postgres", "badger":
	default:
		errs = append(errs, fmt.Errorf("config: unknown cache engine %q", c.Storage.CacheEngine))
	}
	if (c.Storage.Engine == "postgres" || c.Storage.CacheEngine == "postgres") && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("config: LINGUA_POSTGRES_DSN is required for the postgres engine"))
	}

	switch c.LLM.Provider {
	case "openai", "ollama", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("config: unknown LLM provider %q", c.LLM.Provider))
	}
	switch c.LLM.EmbeddingProvider {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("config: unknown embedding provider %q", c.LLM.EmbeddingProvider))
	}
	if c.LLM.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("config: embedding dimension must be positive, got %d", c.LLM.EmbeddingDimension))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("config: LLM max attempts must be >= 1, got %d", c.LLM.MaxAttempts))
	}

	if c.Security.Mode != "development" && c.Security.Mode != "production" {
		errs = append(errs, fmt.Errorf("config: unknown security mode %q", c.Security.Mode))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, fmt.Errorf("config: workers must be >= 1, got %d", c.Engine.Workers))
	}
	if c.Engine.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("config: queue size must be >= 1, got %d", c.Engine.QueueSize))
	}

	return errors.Join(errs...)
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	engine := getEnv("LINGUA_STORAGE_ENGINE", "sqlite")
	return &Config{
		Server: ServerConfig{
			Port:      getEnvInt("LINGUA_PORT", 6464),
			Host:      getEnv("LINGUA_HOST", "127.0.0.1"),
			RateLimit: getEnvFloat("LINGUA_RATE_LIMIT", 20),
			RateBurst: getEnvInt("LINGUA_RATE_BURST", 40),
		},
		Storage: StorageConfig{
			Engine:      engine,
			CacheEngine: getEnv("LINGUA_CACHE_ENGINE", engine),
			DataPath:    getEnv("LINGUA_DATA_PATH", "./data"),
			PostgresDSN: getEnv("LINGUA_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:           getEnv("LINGUA_LLM_PROVIDER", "openai"),
			EmbeddingProvider:  getEnv("LINGUA_EMBEDDING_PROVIDER", "openai"),
			Model:              getEnv("LINGUA_LLM_MODEL", "gpt-4o-mini"),
			EmbeddingModel:     getEnv("LINGUA_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvInt("LINGUA_EMBEDDING_DIMENSION", 1536),
			OpenAIAPIKey:       getEnv("LINGUA_OPENAI_API_KEY", ""),
			OpenAIBaseURL:      getEnv("LINGUA_OPENAI_BASE_URL", ""),
			AnthropicAPIKey:    getEnv("LINGUA_ANTHROPIC_API_KEY", ""),
			OllamaURL:          getEnv("LINGUA_OLLAMA_URL", "http://localhost:11434"),
			MaxAttempts:        getEnvInt("LINGUA_LLM_MAX_ATTEMPTS", 3),
			BaseDelay:          getEnvDuration("LINGUA_LLM_BASE_DELAY", time.Second),
			Timeout:            getEnvDuration("LINGUA_LLM_TIMEOUT", 60*time.Second),
		},
		Security: SecurityConfig{
			Mode:     getEnv("LINGUA_SECURITY_MODE", "development"),
			APIToken: getEnv("LINGUA_API_TOKEN", ""),
		},
		Engine: EngineConfig{
			Workers:             getEnvInt("LINGUA_WORKERS", 2),
			QueueSize:           getEnvInt("LINGUA_QUEUE_SIZE", 1000),
			ShutdownTimeout:     getEnvDuration("LINGUA_SHUTDOWN_TIMEOUT", 30*time.Second),
			BackfillConcurrency: getEnvInt("LINGUA_BACKFILL_CONCURRENCY", 4),
			AutoExtract:         getEnvBool("LINGUA_AUTO_EXTRACT", true),
		},
		Search: SearchConfig{
			MaxCandidatesPerConversation: getEnvInt("LINGUA_SEARCH_MAX_CANDIDATES", 2000),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LINGUA_LOG_LEVEL", "info"),
			Format: getEnv("LINGUA_LOG_FORMAT", "text"),
		},
		Features: FeaturesConfig{
			PolicyPath: getEnv("LINGUA_FEATURE_POLICY", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration parses Go duration syntax ("1s", "30m"); invalid values fall
// back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
