// Package memory implements the semantic memory store for the assistant:
// a SQLite-backed document collection with in-process vector search over
// embeddings fetched from an external provider.
package memory

import (
	"context"
	"net/http"
	"os"
	"time"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Embed generates embeddings for a batch of texts.
	// Returns one float32 vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of the output vectors.
	Dimensions() int

	// Name returns the provider name.
	Name() string
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from stored documents. The store prefers it for query
// vectors when available.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is the embedding provider ("gemini" or "none").
	Provider string `yaml:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model"`

	// Dimensions is the output vector dimensionality (default: auto from model).
	Dimensions int `yaml:"dimensions"`

	// APIKey is the provider API key. If empty, falls back to GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL is the API base URL. If empty, uses the provider default.
	BaseURL string `yaml:"base_url"`
}

// NewEmbedder builds the configured embedding provider.
// Unknown or empty providers fall back to the null embedder; the store then
// degrades to keyword search instead of vector search.
func NewEmbedder(cfg EmbeddingConfig) EmbeddingProvider {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiEmbedder(cfg)
	default:
		return NoneEmbedder{}
	}
}

// NoneEmbedder is the null provider: no vectors, zero cost.
type NoneEmbedder struct{}

func (NoneEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (NoneEmbedder) Dimensions() int { return 0 }

func (NoneEmbedder) Name() string { return "none" }

// resolveAPIKey returns the configured key, or the env var value if empty.
func resolveAPIKey(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}

// newEmbedHTTPClient creates a shared HTTP client for embedding providers.
func newEmbedHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
