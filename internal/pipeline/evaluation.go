package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/config"
)

type correctnessResponse struct {
	Score    score    `json:"score"`
	Analysis text     `json:"analysis"`
	Issues   findings `json:"issues"`
}

type performanceResponse struct {
	Score        score    `json:"score"`
	Estimation   text     `json:"estimation"`
	Bottlenecks  findings `json:"bottlenecks"`
	Optimization text     `json:"optimization"`
}

type improvementsResponse struct {
	Score       score    `json:"score"`
	Areas       text     `json:"areas"`
	Suggestions findings `json:"suggestions"`
	Priorities  findings `json:"priorities"`
}

// Evaluate scores a code artifact along the correctness, performance and
// improvements rubric. Correctness and performance are requested
// concurrently; improvements sees both results. The code is never modified.
func (p *Pipeline) Evaluate(ctx context.Context, an *artifact.PaperAnalysis, code *artifact.CodeArtifact) (_ *artifact.EvaluationResult, err error) {
	ctx, done := observe(ctx, StageEvaluation,
		attribute.String("session.id", code.SessionID),
		attribute.String("code.id", code.ID),
		attribute.Int("code.version", code.Version))
	defer done(&err)

	var (
		correctness artifact.Correctness
		performance artifact.Performance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		correctness, err = p.evaluateCorrectness(gctx, an, code)
		return err
	})
	g.Go(func() error {
		var err error
		performance, err = p.evaluatePerformance(gctx, an, code)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	improvements, err := p.evaluateImprovements(ctx, code, correctness, performance)
	if err != nil {
		return nil, err
	}

	result := &artifact.EvaluationResult{
		ID:           uuid.New().String(),
		SessionID:    code.SessionID,
		CodeID:       code.ID,
		Correctness:  correctness,
		Performance:  performance,
		Improvements: improvements,
		CreatedAt:    time.Now().UTC(),
	}
	result.OverallScore = OverallScore(result, p.settings.Weights)
	result.Materialize()
	return result, nil
}

func (p *Pipeline) evaluateCorrectness(ctx context.Context, an *artifact.PaperAnalysis, code *artifact.CodeArtifact) (artifact.Correctness, error) {
	raw, err := p.complete(ctx, "evaluation.correctness", p.settings.Temperatures.Evaluation, true,
		correctnessSystemPrompt, fmt.Sprintf(correctnessPromptTemplate, code.CodeType, describeAnalysis(an), code.Code))
	if err != nil {
		return artifact.Correctness{}, Upstream(StageEvaluation, err, "correctness evaluation failed")
	}

	var resp correctnessResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return artifact.Correctness{}, Upstream(StageEvaluation, err, "correctness evaluation returned unparseable content")
	}
	if !resp.Score.ok {
		return artifact.Correctness{}, Upstream(StageEvaluation, fmt.Errorf("missing score"), "correctness evaluation returned no score")
	}
	return artifact.Correctness{
		Score:    clampScore(resp.Score.value),
		Analysis: string(resp.Analysis),
		Issues:   nonNil(resp.Issues),
	}, nil
}

func (p *Pipeline) evaluatePerformance(ctx context.Context, an *artifact.PaperAnalysis, code *artifact.CodeArtifact) (artifact.Performance, error) {
	paperContext := an.Concepts.TechnicalDetails
	if paperContext == "" {
		paperContext = an.Summary
	}
	raw, err := p.complete(ctx, "evaluation.performance", p.settings.Temperatures.Evaluation, true,
		performanceSystemPrompt, fmt.Sprintf(performancePromptTemplate, code.CodeType, paperContext, code.Code))
	if err != nil {
		return artifact.Performance{}, Upstream(StageEvaluation, err, "performance evaluation failed")
	}

	var resp performanceResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return artifact.Performance{}, Upstream(StageEvaluation, err, "performance evaluation returned unparseable content")
	}
	bottlenecks := nonNil(resp.Bottlenecks)
	s := resp.Score.value
	if !resp.Score.ok {
		s = 10 - 2*float64(len(bottlenecks))
	}
	return artifact.Performance{
		Score:        clampScore(s),
		Estimation:   string(resp.Estimation),
		Bottlenecks:  bottlenecks,
		Optimization: string(resp.Optimization),
	}, nil
}

func (p *Pipeline) evaluateImprovements(ctx context.Context, code *artifact.CodeArtifact, c artifact.Correctness, perf artifact.Performance) (artifact.Improvements, error) {
	correctnessJSON, _ := json.MarshalIndent(c, "", "  ")
	performanceJSON, _ := json.MarshalIndent(perf, "", "  ")

	raw, err := p.complete(ctx, "evaluation.improvements", p.settings.Temperatures.Evaluation, true,
		improvementsSystemPrompt, fmt.Sprintf(improvementsPromptTemplate, code.CodeType, correctnessJSON, performanceJSON, code.Code))
	if err != nil {
		return artifact.Improvements{}, Upstream(StageEvaluation, err, "improvement evaluation failed")
	}

	var resp improvementsResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return artifact.Improvements{}, Upstream(StageEvaluation, err, "improvement evaluation returned unparseable content")
	}
	suggestions := nonNil(resp.Suggestions)
	s := resp.Score.value
	if !resp.Score.ok {
		s = 10 - float64(len(suggestions))
	}
	return artifact.Improvements{
		Score:       clampScore(s),
		Areas:       string(resp.Areas),
		Suggestions: suggestions,
		Priorities:  nonNil(resp.Priorities),
	}, nil
}

// OverallScore is the weighted mean of the three rubric scores, rounded to
// two decimals. Non-positive total weight falls back to equal weights.
func OverallScore(e *artifact.EvaluationResult, w config.Weights) float64 {
	total := w.Correctness + w.Performance + w.Improvements
	if total <= 0 {
		w = config.Weights{Correctness: 1, Performance: 1, Improvements: 1}
		total = 3
	}
	mean := (w.Correctness*e.Correctness.Score +
		w.Performance*e.Performance.Score +
		w.Improvements*e.Improvements.Score) / total
	return math.Round(mean*100) / 100
}

func nonNil(f findings) []string {
	if f == nil {
		return []string{}
	}
	return f
}
