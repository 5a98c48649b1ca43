// Package pipeline implements the paper-to-code stages: analysis, code
// generation, evaluation and refinement. Stages are pure with respect to
// storage; the session manager commits their outputs.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ziadkadry99/paper2code/internal/config"
	"github.com/ziadkadry99/paper2code/internal/llm"
	"github.com/ziadkadry99/paper2code/internal/metrics"
	"github.com/ziadkadry99/paper2code/internal/rag"
	"github.com/ziadkadry99/paper2code/internal/tracing"
)

// Settings are the generation parameters shared by all stages.
type Settings struct {
	Model        string
	MaxTokens    int
	Temperatures config.Temperatures
	TopK         int
	Weights      config.Weights
}

// SettingsFrom extracts stage settings from the loaded configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Model:        cfg.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperatures: cfg.LLM.Temperatures,
		TopK:         cfg.RAG.TopK,
		Weights:      cfg.Evaluation.Weights,
	}
}

// Pipeline runs the stages against an LLM provider and a retrieval augmenter.
type Pipeline struct {
	provider  llm.Provider
	augmenter *rag.Augmenter
	settings  Settings
}

// New creates a Pipeline. augmenter may be nil, in which case generation
// runs without retrieved context.
func New(provider llm.Provider, augmenter *rag.Augmenter, settings Settings) *Pipeline {
	if settings.TopK <= 0 {
		settings.TopK = 5
	}
	if settings.Weights == (config.Weights{}) {
		settings.Weights = config.Weights{Correctness: 1, Performance: 1, Improvements: 1}
	}
	return &Pipeline{provider: provider, augmenter: augmenter, settings: settings}
}

// Augmenter returns the retrieval augmenter, which may be nil.
func (p *Pipeline) Augmenter() *rag.Augmenter {
	return p.augmenter
}

// complete sends one prompt and returns the raw response text. Call and
// token metrics are recorded per attempt by llm.LimitedProvider.
func (p *Pipeline) complete(ctx context.Context, label string, temperature float64, jsonMode bool, system, user string) (string, error) {
	resp, err := p.provider.Complete(ctx, llm.CompletionRequest{
		Model:       p.settings.Model,
		Messages:    llm.Prompt(system, user),
		MaxTokens:   p.settings.MaxTokens,
		Temperature: temperature,
		JSONMode:    jsonMode,
		Label:       label,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", label, err)
	}
	return resp.Content, nil
}

// observe opens a span for a stage and returns the function that records
// its outcome.
func observe(ctx context.Context, stage Stage, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "pipeline."+string(stage), attrs...)
	return ctx, func(errp *error) {
		err := *errp
		metrics.ObserveStage(string(stage), start, err)
		tracing.End(span, err)
		if err != nil {
			log.Printf("pipeline: %s failed after %s: %v", stage, time.Since(start).Round(time.Millisecond), err)
		}
	}
}
