package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/config"
	"github.com/ziadkadry99/paper2code/internal/llm"
	"github.com/ziadkadry99/paper2code/internal/rag"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

// scriptedProvider answers each request by its Label.
type scriptedProvider struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	requests  []llm.CompletionRequest
}

func newScripted(responses map[string]string) *scriptedProvider {
	return &scriptedProvider{responses: responses, errs: map[string]error{}}
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := s.errs[req.Label]; err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: s.responses[req.Label]}, nil
}

func (s *scriptedProvider) lastPrompt(label string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Label == label {
			return s.requests[i].Messages[len(s.requests[i].Messages)-1].Content
		}
	}
	return ""
}

const analysisJSON = "```json\n" + `{
  "title": "PIE: Proportional Integral controller Enhanced",
  "authors": ["R. Pan", "P. Natarajan"],
  "summary": "PIE controls queueing latency by dropping packets based on estimated delay.",
  "concepts": {"key_concepts": "- queue delay\n- drop probability", "innovations": ["latency-based AQM"], "technical_details": "target 15ms"},
  "architecture": {"overview": "enqueue-time drop decision", "data_flow": "packets", "control_flow": "periodic update", "key_mechanisms": "PI controller"},
  "implementation": {"key_algorithms": ["drop probability update"], "p4_requirements": "registers for delay", "dependencies": []}
}` + "\n```"

var evalResponses = map[string]string{
	"evaluation.correctness":  `{"score": 12, "analysis": "mostly right", "issues": "1. missing burst allowance\n\n2. no ECN"}`,
	"evaluation.performance":  `{"estimation": "fine", "bottlenecks": ["register contention", "  per-packet division "], "optimization": "use shifts"}`,
	"evaluation.improvements": `{"areas": "robustness", "suggestions": ["add ECN", "add burst allowance", "add tests"], "priorities": "add burst allowance\nadd ECN"}`,
}

func testAnalysis() *artifact.PaperAnalysis {
	an := &artifact.PaperAnalysis{
		ID:        "an-1",
		SessionID: "s1",
		Title:     "PIE",
		Summary:   "latency-based AQM",
		Concepts:  artifact.Concepts{KeyConcepts: []string{"queue delay"}, Innovations: []string{"PI control"}},
	}
	an.Materialize()
	return an
}

func newTestPipeline(p llm.Provider, aug *rag.Augmenter) *Pipeline {
	return New(p, aug, Settings{Model: "m", MaxTokens: 100, TopK: 5})
}

func TestParseCodeType(t *testing.T) {
	ct, err := ParseCodeType(" P4 ")
	if err != nil || ct != artifact.CodeP4 {
		t.Fatalf("ParseCodeType(P4) = %q, %v", ct, err)
	}

	_, err = ParseCodeType("rust")
	if !errors.Is(err, ErrUnknownCodeType) {
		t.Fatalf("expected ErrUnknownCodeType, got %v", err)
	}
	if KindOf(err) != KindValidation {
		t.Errorf("expected validation kind, got %v", KindOf(err))
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Name() != "GenerationError" {
		t.Errorf("expected GenerationError, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Here you go:\n{\"a\":{\"b\":2}}\nThanks!", `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("extractJSON = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
	if _, err := extractJSON("no json here"); err == nil {
		t.Error("expected error without an object")
	}
}

func TestNormalizeFindings(t *testing.T) {
	got := NormalizeFindings("1. first\n\n - second\n* third\n(4) fourth\n   ")
	want := []string{"first", "second", "third", "fourth"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
	if empty := NormalizeFindings(""); empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", empty)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"7", 7, true},
		{"7.5/10", 7.5, true},
		{"85/100", 8.5, true},
		{"Score: 6 out of 10", 6, true},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got := parseScore(tt.in)
		if got.ok != tt.ok || got.value != tt.want {
			t.Errorf("parseScore(%q) = %+v, want %v/%v", tt.in, got, tt.want, tt.ok)
		}
	}
}

func TestAnalyze(t *testing.T) {
	provider := newScripted(map[string]string{"analysis": analysisJSON})
	p := newTestPipeline(provider, nil)
	ctx := context.Background()

	an, err := p.Analyze(ctx, "s1", "  The PIE paper text.  ", "pie.pdf")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if an.ID == "" || an.SessionID != "s1" {
		t.Errorf("unexpected identity %q/%q", an.ID, an.SessionID)
	}
	if len(an.Concepts.KeyConcepts) != 2 || an.Concepts.KeyConcepts[1] != "drop probability" {
		t.Errorf("expected normalized key concepts, got %q", an.Concepts.KeyConcepts)
	}
	if an.Implementation.Dependencies == nil {
		t.Error("expected dependencies to be materialized")
	}
	if !strings.Contains(provider.lastPrompt("analysis"), `"pie.pdf"`) {
		t.Error("expected file name hint in prompt")
	}

	if _, err := p.Analyze(ctx, "s1", "   ", ""); KindOf(err) != KindValidation {
		t.Errorf("expected validation error for empty text, got %v", err)
	}

	provider.responses["analysis"] = "I could not read the paper."
	_, err = p.Analyze(ctx, "s1", "text", "")
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindUpstream || pe.Name() != "AnalysisError" {
		t.Errorf("expected upstream AnalysisError, got %v", err)
	}
}

// fixedStore serves the same passages for every query.
type fixedStore struct {
	vectordb.VectorStore
	results []vectordb.SearchResult
}

func (f *fixedStore) Search(_ context.Context, _ string, limit int, _ *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func TestGenerate(t *testing.T) {
	store := &fixedStore{results: []vectordb.SearchResult{
		{Document: vectordb.Document{ID: "ref#0", Content: "v1model registers hold per-port state"}, Similarity: 0.8},
	}}
	aug := rag.New(store, rag.Options{})
	provider := newScripted(map[string]string{
		"generation": `{"title": "PIE in P4", "implementation": {"code": "control PIE() {}"},
			"skeleton": {"code": "control PIE();"}, "control_plane": {"tables": ["set_target"]}}`,
	})
	p := newTestPipeline(provider, aug)
	ctx := context.Background()

	gen, err := p.Generate(ctx, testAnalysis(), artifact.CodeP4)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c := gen.Code
	if c.Version != 0 || c.ParentID != "" || c.AnalysisID != "an-1" || c.SessionID != "s1" {
		t.Errorf("unexpected lineage fields %+v", c)
	}
	if c.Auxiliary[artifact.AuxSkeletonCode] != "control PIE();" {
		t.Errorf("missing skeleton, aux = %v", c.Auxiliary)
	}
	if !strings.Contains(c.Auxiliary[artifact.AuxControlPlane], "set_target") {
		t.Errorf("expected structured control plane kept as text, got %q", c.Auxiliary[artifact.AuxControlPlane])
	}
	if len(gen.Passages) != 1 {
		t.Errorf("expected 1 passage, got %d", len(gen.Passages))
	}
	if !strings.Contains(provider.lastPrompt("generation"), "Document[1]: v1model registers") {
		t.Error("expected retrieved passages in the generation prompt")
	}

	provider.responses["generation"] = `{"implementation": {"code": "control PIE() {}"}}`
	_, err = p.Generate(ctx, testAnalysis(), artifact.CodeP4)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindUpstream || pe.Stage != StageGeneration {
		t.Errorf("expected upstream GenerationError for missing skeleton, got %v", err)
	}

	_, err = p.Generate(ctx, testAnalysis(), artifact.CodeType("verilog"))
	if !errors.Is(err, ErrUnknownCodeType) {
		t.Errorf("expected ErrUnknownCodeType, got %v", err)
	}
}

func TestEvaluateDerivesAndClampsScores(t *testing.T) {
	provider := newScripted(evalResponses)
	p := newTestPipeline(provider, nil)
	code := &artifact.CodeArtifact{ID: "c1", SessionID: "s1", CodeType: artifact.CodeP4, Code: "control PIE() {}"}

	e, err := p.Evaluate(context.Background(), testAnalysis(), code)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if e.Correctness.Score != 10 {
		t.Errorf("expected clamped correctness 10, got %v", e.Correctness.Score)
	}
	if len(e.Correctness.Issues) != 2 || e.Correctness.Issues[0] != "missing burst allowance" {
		t.Errorf("unexpected issues %q", e.Correctness.Issues)
	}
	if e.Performance.Score != 6 {
		t.Errorf("expected derived performance 6, got %v", e.Performance.Score)
	}
	if e.Performance.Bottlenecks[1] != "per-packet division" {
		t.Errorf("expected trimmed bottleneck, got %q", e.Performance.Bottlenecks[1])
	}
	if e.Improvements.Score != 7 {
		t.Errorf("expected derived improvements 7, got %v", e.Improvements.Score)
	}
	if len(e.Improvements.Priorities) != 2 {
		t.Errorf("expected 2 priorities, got %q", e.Improvements.Priorities)
	}
	if e.OverallScore != 7.67 {
		t.Errorf("expected overall 7.67, got %v", e.OverallScore)
	}
	if e.CodeID != "c1" || code.Code != "control PIE() {}" {
		t.Error("evaluation must reference, not modify, the code")
	}
	if !strings.Contains(provider.lastPrompt("evaluation.improvements"), "missing burst allowance") {
		t.Error("expected correctness findings in the improvements prompt")
	}
}

func TestEvaluateUpstreamFailure(t *testing.T) {
	provider := newScripted(evalResponses)
	provider.errs["evaluation.performance"] = &llm.StatusError{Provider: "scripted", StatusCode: 503}
	p := newTestPipeline(provider, nil)

	_, err := p.Evaluate(context.Background(), testAnalysis(), &artifact.CodeArtifact{ID: "c1", CodeType: artifact.CodePython})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindUpstream || pe.Name() != "EvaluationError" {
		t.Fatalf("expected upstream EvaluationError, got %v", err)
	}
}

func TestOverallScoreWeights(t *testing.T) {
	e := &artifact.EvaluationResult{
		Correctness:  artifact.Correctness{Score: 9},
		Performance:  artifact.Performance{Score: 3},
		Improvements: artifact.Improvements{Score: 6},
	}
	if got := OverallScore(e, config.Weights{Correctness: 2, Performance: 1, Improvements: 1}); got != 6.75 {
		t.Errorf("weighted score = %v, want 6.75", got)
	}
	if got := OverallScore(e, config.Weights{}); got != 6 {
		t.Errorf("zero weights should fall back to equal, got %v", got)
	}
}

func TestRefine(t *testing.T) {
	responses := map[string]string{
		"refinement": `{"plan": "1. add ECN", "changelog": "added ECN marking", "implementation": {"code": "control PIE() { ecn(); }"}, "control_plane": "set ecn threshold"}`,
	}
	for k, v := range evalResponses {
		responses[k] = v
	}
	provider := newScripted(responses)
	p := newTestPipeline(provider, nil)

	code := &artifact.CodeArtifact{
		ID: "c1", SessionID: "s1", AnalysisID: "an-1", CodeType: artifact.CodeP4, Title: "PIE in P4",
		Code: "control PIE() {}", Version: 2, ParentID: "c0",
		Auxiliary: map[string]string{artifact.AuxSkeletonCode: "skeleton", artifact.AuxControlPlane: "old"},
	}
	before := &artifact.EvaluationResult{
		ID: "e1", CodeID: "c1", OverallScore: 5,
		Correctness: artifact.Correctness{Score: 5, Issues: []string{"No ECN", "stale drop probability"}},
	}

	out, err := p.Refine(context.Background(), RefineInput{
		Analysis: testAnalysis(), Code: code, Evaluation: before, Feedback: "  please add ECN ", Iteration: 3,
	})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}

	if out.Code.Version != 3 || out.Code.ParentID != "c1" || out.Code.CodeType != artifact.CodeP4 || out.Code.AnalysisID != "an-1" {
		t.Errorf("unexpected refined lineage %+v", out.Code)
	}
	if out.Code.Auxiliary[artifact.AuxSkeletonCode] != "skeleton" {
		t.Error("expected unreturned auxiliary fields to carry over")
	}
	if out.Code.Auxiliary[artifact.AuxControlPlane] != "set ecn threshold" {
		t.Error("expected returned auxiliary fields to be updated")
	}
	if code.Auxiliary[artifact.AuxControlPlane] != "old" {
		t.Error("source code artifact must not be modified")
	}
	if out.Evaluation.CodeID != out.Code.ID {
		t.Error("expected evaluation of the refined code")
	}

	rec := out.Record
	if rec.Iteration != 3 || rec.FeedbackUsed != "please add ECN" || rec.SourceCodeID != "c1" || rec.ResultingCodeID != out.Code.ID {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Evaluation.ScoreBefore != 5 || rec.Evaluation.ScoreAfter != 7.67 {
		t.Errorf("unexpected scores %+v", rec.Evaluation)
	}
	if len(rec.Evaluation.RemainingIssues) != 2 {
		t.Errorf("expected remaining issues from the new correctness review, got %q", rec.Evaluation.RemainingIssues)
	}
	if !strings.Contains(rec.Evaluation.ImprovementAssessment, "improved from 5.00 to 7.67") ||
		!strings.Contains(rec.Evaluation.ImprovementAssessment, "1 issue(s) resolved, 1 new, 2 remaining") {
		t.Errorf("unexpected assessment %q", rec.Evaluation.ImprovementAssessment)
	}
	if rec.Changes.Changelog != "added ECN marking" {
		t.Errorf("unexpected changelog %q", rec.Changes.Changelog)
	}
	if !strings.Contains(provider.lastPrompt("refinement"), "please add ECN") {
		t.Error("expected feedback in the refinement prompt")
	}
}

func TestRefineRequiresEvaluation(t *testing.T) {
	p := newTestPipeline(newScripted(nil), nil)
	_, err := p.Refine(context.Background(), RefineInput{
		Analysis: testAnalysis(),
		Code:     &artifact.CodeArtifact{ID: "c1", CodeType: artifact.CodePython},
	})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindStateConflict || pe.Name() != "RefinementError" {
		t.Fatalf("expected state-conflict RefinementError, got %v", err)
	}
	if !strings.Contains(pe.Msg, "evaluate") {
		t.Errorf("expected message to name the missing step, got %q", pe.Msg)
	}
}

func TestRefineEvaluationFailureIsRefinementError(t *testing.T) {
	provider := newScripted(map[string]string{
		"refinement": `{"implementation": {"code": "x"}}`,
	})
	provider.errs["evaluation.correctness"] = &llm.StatusError{Provider: "scripted", StatusCode: 500}
	p := newTestPipeline(provider, nil)

	_, err := p.Refine(context.Background(), RefineInput{
		Analysis:   testAnalysis(),
		Code:       &artifact.CodeArtifact{ID: "c1", CodeType: artifact.CodePython},
		Evaluation: &artifact.EvaluationResult{},
		Iteration:  1,
	})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindUpstream || pe.Stage != StageRefinement {
		t.Fatalf("expected upstream RefinementError, got %v", err)
	}
}

func TestStopPolicy(t *testing.T) {
	rec := func(before, after float64) artifact.RefinementRecord {
		return artifact.RefinementRecord{Evaluation: artifact.RefinementEvaluation{ScoreBefore: before, ScoreAfter: after}}
	}
	policy := StopPolicy{MaxIterations: 5, PlateauWindow: 2, MinImprovement: 0}

	tests := []struct {
		name    string
		history []artifact.RefinementRecord
		stop    bool
	}{
		{"empty", nil, false},
		{"improving", []artifact.RefinementRecord{rec(5, 6), rec(6, 7)}, false},
		{"one flat", []artifact.RefinementRecord{rec(5, 6), rec(6, 6)}, false},
		{"plateau", []artifact.RefinementRecord{rec(5, 6), rec(6, 6), rec(6, 5.5)}, true},
		{"ceiling", []artifact.RefinementRecord{rec(1, 2), rec(2, 3), rec(3, 4), rec(4, 5), rec(5, 6)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(tt.history)
			if d.Stop != tt.stop {
				t.Errorf("Decide() = %+v, want stop=%v", d, tt.stop)
			}
			if d.Stop && d.Reason == "" {
				t.Error("expected a reason when stopping")
			}
			if d.Iterations != len(tt.history) {
				t.Errorf("Iterations = %d, want %d", d.Iterations, len(tt.history))
			}
		})
	}
}
