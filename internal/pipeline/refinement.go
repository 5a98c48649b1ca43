package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ziadkadry99/paper2code/internal/artifact"
)

// RefineInput is everything one refinement iteration reads.
type RefineInput struct {
	Analysis   *artifact.PaperAnalysis
	Code       *artifact.CodeArtifact
	Evaluation *artifact.EvaluationResult
	Feedback   string
	Iteration  int // 1-based position of this iteration in the lineage
}

// RefineOutput is the uncommitted result of one iteration.
type RefineOutput struct {
	Code       *artifact.CodeArtifact
	Evaluation *artifact.EvaluationResult
	Record     *artifact.RefinementRecord
}

// Refine runs one iteration: plan and apply changes to the current code,
// re-evaluate the result, and describe the change. Nothing is persisted.
func (p *Pipeline) Refine(ctx context.Context, in RefineInput) (_ *RefineOutput, err error) {
	if in.Code == nil {
		return nil, StateConflictf(StageRefinement, "no code to refine; generate code first")
	}
	if in.Evaluation == nil {
		return nil, StateConflictf(StageRefinement, "no evaluation for the current code; evaluate it first")
	}
	if in.Analysis == nil {
		return nil, StateConflictf(StageRefinement, "no paper analysis; upload a paper first")
	}

	ctx, done := observe(ctx, StageRefinement,
		attribute.String("session.id", in.Code.SessionID),
		attribute.String("code.id", in.Code.ID),
		attribute.Int("refine.iteration", in.Iteration))
	defer done(&err)

	v, ok := VariantOf(in.Code.CodeType)
	if !ok {
		return nil, NewError(KindValidation, StageRefinement, ErrUnknownCodeType, "unknown code type %q", in.Code.CodeType)
	}

	correctnessJSON, _ := json.MarshalIndent(in.Evaluation.Correctness, "", "  ")
	performanceJSON, _ := json.MarshalIndent(in.Evaluation.Performance, "", "  ")
	improvementsJSON, _ := json.MarshalIndent(in.Evaluation.Improvements, "", "  ")
	feedback := strings.TrimSpace(in.Feedback)

	prompt := fmt.Sprintf(refinementPromptTemplate,
		v.Label, auxSchema(v), currentCode(in.Code, v),
		correctnessJSON, performanceJSON, improvementsJSON, orNone(feedback))

	raw, err := p.complete(ctx, "refinement", p.settings.Temperatures.Refinement, true, refinementSystemPrompt, prompt)
	if err != nil {
		return nil, Upstream(StageRefinement, err, "refinement failed")
	}

	var resp map[string]any
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, Upstream(StageRefinement, err, "refinement returned unparseable content")
	}
	code := primaryCode(resp)
	if code == "" {
		return nil, Upstream(StageRefinement, fmt.Errorf("missing implementation.code"), "refinement returned no code")
	}

	// Auxiliary fields the model did not return carry over unchanged.
	aux := make(map[string]string, len(in.Code.Auxiliary))
	for k, val := range in.Code.Auxiliary {
		aux[k] = val
	}
	for k, val := range auxiliaryFields(resp, v) {
		aux[k] = val
	}

	refined := &artifact.CodeArtifact{
		ID:         uuid.New().String(),
		SessionID:  in.Code.SessionID,
		AnalysisID: in.Code.AnalysisID,
		CodeType:   in.Code.CodeType,
		Title:      in.Code.Title,
		Code:       code,
		Auxiliary:  aux,
		Version:    in.Code.Version + 1,
		ParentID:   in.Code.ID,
		CreatedAt:  time.Now().UTC(),
	}

	eval, err := p.Evaluate(ctx, in.Analysis, refined)
	if err != nil {
		return nil, restage(StageRefinement, err)
	}

	record := &artifact.RefinementRecord{
		ID:           uuid.New().String(),
		SessionID:    in.Code.SessionID,
		Iteration:    in.Iteration,
		FeedbackUsed: feedback,
		Changes: artifact.Changes{
			Changelog: lookup(resp, "changelog"),
			Plan:      lookup(resp, "plan"),
		},
		Evaluation: artifact.RefinementEvaluation{
			ImprovementAssessment: AssessImprovement(in.Evaluation, eval),
			RemainingIssues:       append([]string{}, eval.Correctness.Issues...),
			ScoreBefore:           in.Evaluation.OverallScore,
			ScoreAfter:            eval.OverallScore,
		},
		SourceCodeID:    in.Code.ID,
		ResultingCodeID: refined.ID,
		CreatedAt:       time.Now().UTC(),
	}

	return &RefineOutput{Code: refined, Evaluation: eval, Record: record}, nil
}

func auxSchema(v Variant) string {
	var sb strings.Builder
	for _, key := range v.AuxKeys() {
		if parent, child, ok := strings.Cut(key, "."); ok {
			fmt.Fprintf(&sb, ",\n  %q: {%q: \"updated %s, only if changed\"}", parent, child, key)
			continue
		}
		fmt.Fprintf(&sb, ",\n  %q: \"updated %s, only if changed\"", key, key)
	}
	return sb.String()
}

func currentCode(c *artifact.CodeArtifact, v Variant) string {
	var sb strings.Builder
	sb.WriteString(c.Code)
	for _, key := range v.AuxKeys() {
		if val := c.Auxiliary[key]; val != "" {
			fmt.Fprintf(&sb, "\n\n[%s]\n%s", key, val)
		}
	}
	return sb.String()
}

// AssessImprovement compares two evaluations of a lineage and describes the
// change in scores and correctness issues.
func AssessImprovement(before, after *artifact.EvaluationResult) string {
	delta := after.OverallScore - before.OverallScore
	var verdict string
	switch {
	case delta > 0:
		verdict = fmt.Sprintf("Overall score improved from %.2f to %.2f (%+.2f).", before.OverallScore, after.OverallScore, delta)
	case delta < 0:
		verdict = fmt.Sprintf("Overall score regressed from %.2f to %.2f (%+.2f).", before.OverallScore, after.OverallScore, delta)
	default:
		verdict = fmt.Sprintf("Overall score unchanged at %.2f.", after.OverallScore)
	}

	prior := make(map[string]bool, len(before.Correctness.Issues))
	for _, issue := range before.Correctness.Issues {
		prior[strings.ToLower(issue)] = true
	}
	current := make(map[string]bool, len(after.Correctness.Issues))
	introduced := 0
	for _, issue := range after.Correctness.Issues {
		key := strings.ToLower(issue)
		current[key] = true
		if !prior[key] {
			introduced++
		}
	}
	resolved := 0
	for issue := range prior {
		if !current[issue] {
			resolved++
		}
	}

	return fmt.Sprintf("%s Correctness %.1f → %.1f, performance %.1f → %.1f, improvements %.1f → %.1f. %d issue(s) resolved, %d new, %d remaining.",
		verdict,
		before.Correctness.Score, after.Correctness.Score,
		before.Performance.Score, after.Performance.Score,
		before.Improvements.Score, after.Improvements.Score,
		resolved, introduced, len(after.Correctness.Issues))
}
