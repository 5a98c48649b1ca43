package config

import "time"

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
)

// LockBackend selects how per-session serialization is enforced.
type LockBackend string

const (
	LockMemory LockBackend = "memory"
	LockRedis  LockBackend = "redis"
)

// Config is the top-level paper2code configuration, corresponding to .paper2code.yml.
type Config struct {
	Provider          ProviderType     `yaml:"provider" koanf:"provider"`
	Model             string           `yaml:"model" koanf:"model"`
	BaseURL           string           `yaml:"base_url" koanf:"base_url"`
	EmbeddingProvider ProviderType     `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string           `yaml:"embedding_model" koanf:"embedding_model"`
	DataDir           string           `yaml:"data_dir" koanf:"data_dir"`
	Server            ServerConfig     `yaml:"server" koanf:"server"`
	LLM               LLMConfig        `yaml:"llm" koanf:"llm"`
	RAG               RAGConfig        `yaml:"rag" koanf:"rag"`
	Evaluation        EvaluationConfig `yaml:"evaluation" koanf:"evaluation"`
	Refine            RefineConfig     `yaml:"refine" koanf:"refine"`
	Lock              LockConfig       `yaml:"lock" koanf:"lock"`
	Tracing           TracingConfig    `yaml:"tracing" koanf:"tracing"`
	Knowledge         KnowledgeConfig  `yaml:"knowledge" koanf:"knowledge"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// LLMConfig controls outbound generation calls.
type LLMConfig struct {
	MaxConcurrency    int          `yaml:"max_concurrency" koanf:"max_concurrency"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens"`
	Temperatures      Temperatures `yaml:"temperatures" koanf:"temperatures"`
	Retry             RetryConfig  `yaml:"retry" koanf:"retry"`
}

// Temperatures are the sampling temperatures used by each stage.
type Temperatures struct {
	Analysis   float64 `yaml:"analysis" koanf:"analysis"`
	Generation float64 `yaml:"generation" koanf:"generation"`
	Evaluation float64 `yaml:"evaluation" koanf:"evaluation"`
	Refinement float64 `yaml:"refinement" koanf:"refinement"`
	Chat       float64 `yaml:"chat" koanf:"chat"`
}

// RetryConfig bounds the exponential backoff applied to transient failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" koanf:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval" koanf:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" koanf:"max_interval"`
}

// RAGConfig controls retrieval.
type RAGConfig struct {
	TopK             int    `yaml:"top_k" koanf:"top_k"`
	MaxQueries       int    `yaml:"max_queries" koanf:"max_queries"`
	PerQuery         int    `yaml:"per_query" koanf:"per_query"`
	SnapshotSchedule string `yaml:"snapshot_schedule" koanf:"snapshot_schedule"`
}

// EvaluationConfig holds the rubric weights used for overall_score.
type EvaluationConfig struct {
	Weights Weights `yaml:"weights" koanf:"weights"`
}

// Weights are the relative weights of the three rubric sections.
type Weights struct {
	Correctness  float64 `yaml:"correctness" koanf:"correctness"`
	Performance  float64 `yaml:"performance" koanf:"performance"`
	Improvements float64 `yaml:"improvements" koanf:"improvements"`
}

// RefineConfig is the advisory stop policy for refinement.
type RefineConfig struct {
	MaxIterations  int     `yaml:"max_iterations" koanf:"max_iterations"`
	PlateauWindow  int     `yaml:"plateau_window" koanf:"plateau_window"`
	MinImprovement float64 `yaml:"min_improvement" koanf:"min_improvement"`
}

// LockConfig selects the session lock backend.
type LockConfig struct {
	Backend   LockBackend   `yaml:"backend" koanf:"backend"`
	RedisAddr string        `yaml:"redis_addr" koanf:"redis_addr"`
	TTL       time.Duration `yaml:"ttl" koanf:"ttl"`
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" koanf:"enabled"`
}

// KnowledgeConfig holds the glob patterns used by `kb ingest`.
type KnowledgeConfig struct {
	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`
}
