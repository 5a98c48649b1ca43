package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// DefaultConfigFile is the file written by the wizard.
const DefaultConfigFile = ".paper2code.yml"

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .paper2code.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to paper2code! Let's configure the pipeline.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)
	defaults := DefaultModels[cfg.Provider]

	modelPrompt := promptui.Prompt{
		Label:   "Model",
		Default: defaults.Model,
	}
	if cfg.Model, err = modelPrompt.Run(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	baseURLPrompt := promptui.Prompt{
		Label:   "API base URL (blank for the provider default)",
		Default: "",
	}
	if cfg.BaseURL, err = baseURLPrompt.Run(); err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}

	cfg.EmbeddingProvider = embeddingProviderFor(cfg.Provider)
	cfg.EmbeddingModel = DefaultModels[cfg.EmbeddingProvider].EmbeddingModel
	if cfg.Provider == ProviderOllama {
		cfg.EmbeddingModel = defaults.EmbeddingModel
	}

	dataPrompt := promptui.Prompt{
		Label:   "Data directory for sessions and the knowledge base",
		Default: cfg.DataDir,
	}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	iterPrompt := promptui.Prompt{
		Label:    "Recommended maximum refinement iterations",
		Default:  strconv.Itoa(cfg.Refine.MaxIterations),
		Validate: positiveInt,
	}
	iterStr, err := iterPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("max iterations: %w", err)
	}
	cfg.Refine.MaxIterations, _ = strconv.Atoi(iterStr)

	includePrompt := promptui.Prompt{
		Label:   "Knowledge file patterns (comma-separated globs)",
		Default: strings.Join(DefaultIncludes, ","),
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	cfg.Knowledge.Include = splitAndTrim(includeStr)

	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running paper2code server.\n", envVar)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(DefaultConfigFile); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultConfigFile)
	return cfg, nil
}

// embeddingProviderFor returns the embedding provider for a chat provider.
// Anthropic has no embeddings endpoint, so it falls back to OpenAI.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive integer")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and drops empty entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
