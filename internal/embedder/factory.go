// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings: Google Gemini (genai SDK),
// OpenAI and Azure OpenAI (openai-go SDK), and Ollama (plain HTTP).
package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/54b3r/notesai-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultGeminiModel = "text-embedding-004"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOllamaModel = "nomic-embed-text"

	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Backend returns the effective embedding backend: EMBEDDING_PROVIDER, then
// MODEL_PROVIDER when it names a backend that can embed, then gemini.
func Backend() string {
	if b := getEnv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	switch p := getEnv("MODEL_PROVIDER"); p {
	case "gemini", "openai", "azure", "ollama":
		return p
	}
	return "gemini"
}

// DefaultDimensions returns the default embedding vector size for the given
// backend. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "openai", "azure":
		return defaultOpenAIDimensions
	default:
		return defaultGeminiDimensions
	}
}

// NewFromEnv constructs a rag.Embedder from environment variables. Missing
// credentials are reported as rag.ErrConfiguration.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else gemini
//  2. EMBEDDING_API_KEY overrides the backend's native key variable
//  3. EMBEDDING_MODEL overrides the backend default model
//  4. EMBEDDING_ENDPOINT overrides the backend's endpoint
//  5. EMBEDDING_DIMENSIONS requests a specific output size
//  6. EMBEDDING_RETRIES > 0 wraps the embedder in Retrying
func NewFromEnv(ctx context.Context, log *slog.Logger) (rag.Embedder, error) {
	base, err := newBase(ctx, Backend())
	if err != nil {
		return nil, err
	}
	retries := getEnvInt("EMBEDDING_RETRIES", 0)
	if retries < 0 {
		retries = 0
	}
	return NewRetrying(base, &RetryConfig{MaxRetries: uint64(retries), Logger: log}), nil
}

func newBase(ctx context.Context, backend string) (rag.Embedder, error) {
	apiKey := getEnv("EMBEDDING_API_KEY")
	endpoint := getEnv("EMBEDDING_ENDPOINT")
	dims := getEnvInt("EMBEDDING_DIMENSIONS", 0)

	switch backend {
	case "gemini":
		if apiKey == "" {
			apiKey = getEnv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: %w: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY", rag.ErrConfiguration)
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: dims,
		})

	case "openai":
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: %w: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY", rag.ErrConfiguration)
		}
		if endpoint == "" {
			endpoint = getEnv("OPENAI_BASE_URL")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
		}), nil

	case "azure":
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: %w: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY", rag.ErrConfiguration)
		}
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: %w: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT", rag.ErrConfiguration)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		}), nil

	case "ollama":
		if endpoint == "" {
			endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  endpoint,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: %w: unknown backend %q (valid: gemini, openai, azure, ollama)", rag.ErrConfiguration, backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
