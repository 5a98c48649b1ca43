package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a new LLM provider based on the given provider type and model.
// Supported provider types: "anthropic", "openai", "ollama". baseURL overrides
// the provider's default endpoint when non-empty.
func NewProvider(providerType, model, baseURL string) (Provider, error) {
	switch providerType {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		return NewAnthropicProvider(apiKey, model, baseURL), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(apiKey, model, baseURL), nil

	case "ollama":
		host := baseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(host, model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// Stack wraps a base provider with the concurrency cap, rate limit and
// retry policy. Retries sit outside the limiter so each attempt takes its
// own slot.
func Stack(base Provider, maxConcurrent, rpm int, policy RetryPolicy) Provider {
	return NewRetryingProvider(NewLimitedProvider(base, maxConcurrent, rpm), policy)
}
