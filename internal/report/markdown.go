// Package report renders evaluations and refinement histories as markdown
// and HTML.
package report

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/paper2code/internal/artifact"
)

// fenceLanguage is the code fence language used for each code type. P4 has
// no highlighter of its own and reads well as C.
var fenceLanguage = map[artifact.CodeType]string{
	artifact.CodePython: "python",
	artifact.CodeNS3:    "cpp",
	artifact.CodeP4:     "c",
}

// Evaluation renders an evaluation of code as a markdown report.
func Evaluation(code *artifact.CodeArtifact, e *artifact.EvaluationResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Evaluation report: %s\n\n", titleOf(code))
	fmt.Fprintf(&sb, "Code type: %s, version %d. Overall score: **%.2f/10**.\n\n", code.CodeType, code.Version, e.OverallScore)

	sb.WriteString("## 1. Correctness\n\n")
	fmt.Fprintf(&sb, "**Score**: %.1f/10\n\n", e.Correctness.Score)
	section(&sb, "Analysis", e.Correctness.Analysis)
	list(&sb, "Issues", e.Correctness.Issues)

	sb.WriteString("## 2. Performance\n\n")
	fmt.Fprintf(&sb, "**Score**: %.1f/10\n\n", e.Performance.Score)
	section(&sb, "Estimation", e.Performance.Estimation)
	list(&sb, "Bottlenecks", e.Performance.Bottlenecks)
	section(&sb, "Optimization", e.Performance.Optimization)

	sb.WriteString("## 3. Improvements\n\n")
	fmt.Fprintf(&sb, "**Score**: %.1f/10\n\n", e.Improvements.Score)
	section(&sb, "Areas", e.Improvements.Areas)
	list(&sb, "Suggestions", e.Improvements.Suggestions)
	numbered(&sb, "Priorities", e.Improvements.Priorities)

	return sb.String()
}

// Refinement renders the refinement process of a lineage: one section per
// iteration followed by a before/after comparison of the first and last
// versions. lineage is root first, as returned by artifact.Store.Lineage.
func Refinement(lineage []artifact.CodeArtifact, history []artifact.RefinementRecord) string {
	var sb strings.Builder
	if len(lineage) == 0 {
		return "# Refinement process\n\nNo code.\n"
	}
	first, last := lineage[0], lineage[len(lineage)-1]
	fmt.Fprintf(&sb, "# Refinement process: %s\n\n", titleOf(&last))

	if len(history) == 0 {
		sb.WriteString("This implementation has not been refined yet.\n\n")
	}
	for i, r := range history {
		fmt.Fprintf(&sb, "## Iteration %d\n\n", r.Iteration)
		if r.FeedbackUsed != "" {
			fmt.Fprintf(&sb, "> Feedback: %s\n\n", r.FeedbackUsed)
		}
		fmt.Fprintf(&sb, "Score: %.2f → %.2f\n\n", r.Evaluation.ScoreBefore, r.Evaluation.ScoreAfter)
		section(&sb, "Plan", r.Changes.Plan)
		section(&sb, "Changelog", r.Changes.Changelog)
		section(&sb, "Assessment", r.Evaluation.ImprovementAssessment)
		list(&sb, "Remaining issues", r.Evaluation.RemainingIssues)
		if i < len(history)-1 {
			sb.WriteString("---\n\n")
		}
	}

	if len(lineage) > 1 {
		lang := fenceLanguage[last.CodeType]
		fmt.Fprintf(&sb, "## Before (version %d)\n\n", first.Version)
		fence(&sb, lang, first.Code)
		fmt.Fprintf(&sb, "## After (version %d)\n\n", last.Version)
		fence(&sb, lang, last.Code)
	}
	return sb.String()
}

func titleOf(c *artifact.CodeArtifact) string {
	if c.Title != "" {
		return c.Title
	}
	return string(c.CodeType) + " implementation"
}

func section(sb *strings.Builder, heading, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(sb, "### %s\n\n%s\n\n", heading, strings.TrimSpace(body))
}

func list(sb *strings.Builder, heading string, items []string) {
	fmt.Fprintf(sb, "### %s\n\n", heading)
	if len(items) == 0 {
		sb.WriteString("None.\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
	sb.WriteString("\n")
}

func numbered(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "### %s\n\n", heading)
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, item)
	}
	sb.WriteString("\n")
}

func fence(sb *strings.Builder, lang, code string) {
	marker := "```"
	for strings.Contains(code, marker) {
		marker += "`"
	}
	fmt.Fprintf(sb, "%s%s\n%s\n%s\n\n", marker, lang, strings.TrimRight(code, "\n"), marker)
}
