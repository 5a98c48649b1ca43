package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ziadkadry99/paper2code/internal/artifact"
)

// maxPaperChars bounds the paper text sent for analysis.
const maxPaperChars = 60000

type analysisResponse struct {
	Title    text     `json:"title"`
	Authors  findings `json:"authors"`
	Summary  text     `json:"summary"`
	Concepts struct {
		KeyConcepts      findings `json:"key_concepts"`
		Innovations      findings `json:"innovations"`
		TechnicalDetails text     `json:"technical_details"`
	} `json:"concepts"`
	Architecture struct {
		Overview      text `json:"overview"`
		DataFlow      text `json:"data_flow"`
		ControlFlow   text `json:"control_flow"`
		KeyMechanisms text `json:"key_mechanisms"`
	} `json:"architecture"`
	Implementation struct {
		KeyAlgorithms      findings `json:"key_algorithms"`
		PythonRequirements text     `json:"python_requirements"`
		NS3Requirements    text     `json:"ns3_requirements"`
		P4Requirements     text     `json:"p4_requirements"`
		Dependencies       findings `json:"dependencies"`
	} `json:"implementation"`
}

// Analyze turns extracted paper text into a new PaperAnalysis. titleHint,
// usually the upload file name, is used when the model returns no title.
func (p *Pipeline) Analyze(ctx context.Context, sessionID, paperText, titleHint string) (_ *artifact.PaperAnalysis, err error) {
	ctx, done := observe(ctx, StageAnalysis, attribute.String("session.id", sessionID))
	defer done(&err)

	paperText = strings.TrimSpace(paperText)
	if paperText == "" {
		return nil, Validationf(StageAnalysis, "paper text is empty")
	}
	paperText = truncate(paperText, maxPaperChars)

	hint := ""
	if titleHint != "" {
		hint = fmt.Sprintf("\nThe uploaded file was named %q.\n", titleHint)
	}

	raw, err := p.complete(ctx, "analysis", p.settings.Temperatures.Analysis, true,
		analysisSystemPrompt, fmt.Sprintf(analysisPromptTemplate, hint, paperText))
	if err != nil {
		return nil, Upstream(StageAnalysis, err, "paper analysis failed")
	}

	var resp analysisResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, Upstream(StageAnalysis, err, "paper analysis returned unparseable content")
	}
	if resp.Summary == "" && len(resp.Concepts.KeyConcepts) == 0 {
		return nil, Upstream(StageAnalysis, fmt.Errorf("response had no summary or key concepts"), "paper analysis returned no content")
	}

	title := string(resp.Title)
	if title == "" {
		title = strings.TrimSpace(titleHint)
	}

	an := &artifact.PaperAnalysis{
		ID:        uuid.New().String(),
		Title:     title,
		Authors:   resp.Authors,
		Summary:   string(resp.Summary),
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Concepts: artifact.Concepts{
			KeyConcepts:      resp.Concepts.KeyConcepts,
			Innovations:      resp.Concepts.Innovations,
			TechnicalDetails: string(resp.Concepts.TechnicalDetails),
		},
		Architecture: artifact.Architecture{
			Overview:      string(resp.Architecture.Overview),
			DataFlow:      string(resp.Architecture.DataFlow),
			ControlFlow:   string(resp.Architecture.ControlFlow),
			KeyMechanisms: string(resp.Architecture.KeyMechanisms),
		},
		Implementation: artifact.Implementation{
			KeyAlgorithms:      resp.Implementation.KeyAlgorithms,
			PythonRequirements: string(resp.Implementation.PythonRequirements),
			NS3Requirements:    string(resp.Implementation.NS3Requirements),
			P4Requirements:     string(resp.Implementation.P4Requirements),
			Dependencies:       resp.Implementation.Dependencies,
		},
	}
	an.Materialize()
	return an, nil
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// describeAnalysis renders the parts of an analysis used as prompt context.
func describeAnalysis(an *artifact.PaperAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", an.Title)
	if len(an.Authors) > 0 {
		fmt.Fprintf(&sb, "Authors: %s\n", strings.Join(an.Authors, ", "))
	}
	fmt.Fprintf(&sb, "Summary: %s\n", an.Summary)
	writeList(&sb, "Key concepts", an.Concepts.KeyConcepts)
	writeList(&sb, "Innovations", an.Concepts.Innovations)
	writeField(&sb, "Technical details", an.Concepts.TechnicalDetails)
	writeField(&sb, "Architecture", an.Architecture.Overview)
	writeField(&sb, "Data flow", an.Architecture.DataFlow)
	writeField(&sb, "Control flow", an.Architecture.ControlFlow)
	writeField(&sb, "Key mechanisms", an.Architecture.KeyMechanisms)
	writeList(&sb, "Key algorithms", an.Implementation.KeyAlgorithms)
	writeList(&sb, "Dependencies", an.Implementation.Dependencies)
	return sb.String()
}

func writeField(sb *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(sb, "%s: %s\n", label, value)
	}
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}
