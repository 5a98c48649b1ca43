package embeddings

import (
	"context"
	"fmt"
	"os"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// New creates an embedder for the given provider ("openai" or "ollama").
// baseURL is only applied to OpenAI-compatible endpoints and Ollama.
func New(provider, model, baseURL string) (Embedder, error) {
	switch provider {
	case "openai", "":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return NewOpenAIEmbedder(apiKey, OpenAIModel(model), baseURL), nil
	case "ollama":
		host := baseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaEmbedder(model, 768, host), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
