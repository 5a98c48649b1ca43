package config

import "time"

// DefaultModels maps each provider to its default chat and embedding models.
var DefaultModels = map[ProviderType]struct {
	Model          string
	EmbeddingModel string
}{
	ProviderOpenAI:    {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-large"},
	ProviderAnthropic: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-large"},
	ProviderOllama:    {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultIncludes are the knowledge files picked up by `kb ingest`.
var DefaultIncludes = []string{"**/*.md", "**/*.txt", "**/*.p4", "**/*.cc", "**/*.py"}

// DefaultExcludes are glob patterns skipped by `kb ingest`.
var DefaultExcludes = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"**/__pycache__/**",
	"build/**",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-large",
		DataDir:           ".paper2code",
		Server: ServerConfig{
			Port:           5000,
			RequestTimeout: 5 * time.Minute,
		},
		LLM: LLMConfig{
			MaxConcurrency:    4,
			RequestsPerMinute: 60,
			MaxTokens:         4096,
			Temperatures: Temperatures{
				Analysis:   0.2,
				Generation: 0.3,
				Evaluation: 0.1,
				Refinement: 0.3,
				Chat:       0.2,
			},
			Retry: RetryConfig{
				MaxAttempts:     4,
				InitialInterval: 2 * time.Second,
				MaxInterval:     30 * time.Second,
			},
		},
		RAG: RAGConfig{
			TopK:             5,
			MaxQueries:       3,
			PerQuery:         3,
			SnapshotSchedule: "@every 5m",
		},
		Evaluation: EvaluationConfig{
			Weights: Weights{Correctness: 1, Performance: 1, Improvements: 1},
		},
		Refine: RefineConfig{
			MaxIterations:  5,
			PlateauWindow:  2,
			MinImprovement: 0,
		},
		Lock: LockConfig{
			Backend: LockMemory,
			TTL:     10 * time.Minute,
		},
		Knowledge: KnowledgeConfig{
			Include: DefaultIncludes,
			Exclude: DefaultExcludes,
		},
	}
}
