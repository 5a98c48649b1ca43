package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider %q, got %q", ProviderOpenAI, cfg.Provider)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("expected default rag.top_k 5, got %d", cfg.RAG.TopK)
	}
	if cfg.Refine.MaxIterations != 5 {
		t.Errorf("expected default refine.max_iterations 5, got %d", cfg.Refine.MaxIterations)
	}
	if cfg.Refine.PlateauWindow != 2 {
		t.Errorf("expected default refine.plateau_window 2, got %d", cfg.Refine.PlateauWindow)
	}
	w := cfg.Evaluation.Weights
	if w.Correctness != w.Performance || w.Performance != w.Improvements {
		t.Errorf("expected equal default weights, got %+v", w)
	}
	if cfg.LLM.Temperatures.Evaluation != 0.1 {
		t.Errorf("expected evaluation temperature 0.1, got %v", cfg.LLM.Temperatures.Evaluation)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.paper2code.yml")

	original := DefaultConfig()
	original.Provider = ProviderAnthropic
	original.Model = "claude-sonnet-4-5-20250929"
	original.BaseURL = "https://proxy.internal/v1"
	original.RAG.TopK = 8
	original.Refine.MaxIterations = 3
	original.LLM.Retry.MaxInterval = 45 * time.Second
	original.Knowledge.Include = []string{"**/*.md", "**/*.p4"}

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Provider != original.Provider {
		t.Errorf("provider: got %q, want %q", loaded.Provider, original.Provider)
	}
	if loaded.Model != original.Model {
		t.Errorf("model: got %q, want %q", loaded.Model, original.Model)
	}
	if loaded.BaseURL != original.BaseURL {
		t.Errorf("base_url: got %q, want %q", loaded.BaseURL, original.BaseURL)
	}
	if loaded.RAG.TopK != 8 {
		t.Errorf("rag.top_k: got %d, want 8", loaded.RAG.TopK)
	}
	if loaded.Refine.MaxIterations != 3 {
		t.Errorf("refine.max_iterations: got %d, want 3", loaded.Refine.MaxIterations)
	}
	if loaded.LLM.Retry.MaxInterval != 45*time.Second {
		t.Errorf("llm.retry.max_interval: got %v, want 45s", loaded.LLM.Retry.MaxInterval)
	}
	if len(loaded.Knowledge.Include) != 2 || loaded.Knowledge.Include[1] != "**/*.p4" {
		t.Errorf("knowledge.include: got %v", loaded.Knowledge.Include)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("PAPER2CODE_PROVIDER", "anthropic")
	t.Setenv("PAPER2CODE_REFINE__MAX_ITERATIONS", "7")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider != ProviderAnthropic {
		t.Errorf("env override failed: got %q, want %q", loaded.Provider, ProviderAnthropic)
	}
	if loaded.Refine.MaxIterations != 7 {
		t.Errorf("nested env override failed: got %d, want 7", loaded.Refine.MaxIterations)
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid provider", func(c *Config) { c.Provider = "invalid" }},
		{"empty provider", func(c *Config) { c.Provider = "" }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"anthropic embeddings", func(c *Config) { c.EmbeddingProvider = ProviderAnthropic }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"negative concurrency", func(c *Config) { c.LLM.MaxConcurrency = -1 }},
		{"zero retry attempts", func(c *Config) { c.LLM.Retry.MaxAttempts = 0 }},
		{"zero top_k", func(c *Config) { c.RAG.TopK = 0 }},
		{"negative weight", func(c *Config) { c.Evaluation.Weights.Performance = -1 }},
		{"all weights zero", func(c *Config) { c.Evaluation.Weights = Weights{} }},
		{"zero max iterations", func(c *Config) { c.Refine.MaxIterations = 0 }},
		{"zero plateau window", func(c *Config) { c.Refine.PlateauWindow = 0 }},
		{"redis without addr", func(c *Config) { c.Lock.Backend = LockRedis }},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "etcd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderAnthropic, "ANTHROPIC_API_KEY"},
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderOllama, ""},
	}
	for _, tt := range tests {
		got := APIKeyEnvVar(tt.provider)
		if got != tt.want {
			t.Errorf("APIKeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"**/*.md", []string{"**/*.md"}},
		{"", nil},
		{"  ,  , ", nil},
	}
	for _, tt := range tests {
		got := splitAndTrim(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitAndTrim(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
			continue
		}
		for i, v := range got {
			if v != tt.want[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
			}
		}
	}
}
