package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/rag"
)

// Generation is the output of the code generation stage.
type Generation struct {
	Code     *artifact.CodeArtifact
	Passages []rag.Passage
}

// RetrievalQueries builds the base, concept and code type queries used to
// augment generation.
func RetrievalQueries(an *artifact.PaperAnalysis, v Variant) []string {
	concepts := strings.Join(append(append([]string{}, an.Concepts.KeyConcepts...), an.Concepts.Innovations...), " ")
	return []string{
		strings.TrimSpace(an.Title + " " + concepts),
		concepts,
		strings.TrimSpace(an.Title + " " + v.Hint),
	}
}

// Generate produces version 0 of a code artifact for an analysis.
func (p *Pipeline) Generate(ctx context.Context, an *artifact.PaperAnalysis, codeType artifact.CodeType) (_ *Generation, err error) {
	ctx, done := observe(ctx, StageGeneration,
		attribute.String("session.id", an.SessionID),
		attribute.String("code.type", string(codeType)))
	defer done(&err)

	v, ok := VariantOf(codeType)
	if !ok {
		return nil, NewError(KindValidation, StageGeneration, ErrUnknownCodeType, "unknown code type %q (expected python, ns3 or p4)", codeType)
	}

	passages := []rag.Passage{}
	if p.augmenter != nil {
		passages, err = p.augmenter.RetrieveAll(ctx, RetrievalQueries(an, v), p.settings.TopK)
		if err != nil {
			return nil, Upstream(StageGeneration, err, "knowledge retrieval failed")
		}
	}

	retrieved := ""
	if ctxText := rag.Format(passages); ctxText != "" {
		retrieved = fmt.Sprintf(retrievedContextTemplate, ctxText)
	}
	prompt := fmt.Sprintf(generationPromptTemplate,
		v.Label, v.Schema, describeAnalysis(an), v.Label, orNone(v.Requirements(an.Implementation)), retrieved)

	raw, err := p.complete(ctx, "generation", p.settings.Temperatures.Generation, true, generationSystemPrompt, prompt)
	if err != nil {
		return nil, Upstream(StageGeneration, err, "code generation failed")
	}

	var resp map[string]any
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, Upstream(StageGeneration, err, "code generation returned unparseable content")
	}

	code := primaryCode(resp)
	if code == "" {
		return nil, Upstream(StageGeneration, fmt.Errorf("missing implementation.code"), "code generation returned no code")
	}
	aux := auxiliaryFields(resp, v)
	for _, key := range v.Required {
		if aux[key] == "" {
			return nil, Upstream(StageGeneration, fmt.Errorf("missing required field %s", key),
				fmt.Sprintf("code generation omitted %s", key))
		}
	}

	title := lookup(resp, "title")
	if title == "" {
		title = fmt.Sprintf("%s implementation of %s", v.Label, an.Title)
	}

	return &Generation{
		Code: &artifact.CodeArtifact{
			ID:         uuid.New().String(),
			SessionID:  an.SessionID,
			AnalysisID: an.ID,
			CodeType:   codeType,
			Title:      title,
			Code:       code,
			Auxiliary:  aux,
			Version:    0,
			CreatedAt:  time.Now().UTC(),
		},
		Passages: passages,
	}, nil
}

// primaryCode reads implementation.code, accepting a top-level "code" field
// from models that flatten the shape.
func primaryCode(resp map[string]any) string {
	if code := lookup(resp, "implementation.code"); code != "" {
		return code
	}
	if code := lookup(resp, "code"); code != "" {
		return code
	}
	// Some models return implementation as a bare string.
	if s, ok := resp["implementation"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// auxiliaryFields collects the variant's auxiliary keys present in resp.
func auxiliaryFields(resp map[string]any, v Variant) map[string]string {
	aux := make(map[string]string)
	for _, key := range v.AuxKeys() {
		val := lookup(resp, key)
		if val == "" && key == artifact.AuxSkeletonCode {
			if s, ok := resp["skeleton"].(string); ok {
				val = strings.TrimSpace(s)
			}
		}
		if val != "" {
			aux[key] = val
		}
	}
	return aux
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none given)"
	}
	return s
}
