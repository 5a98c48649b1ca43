package artifact

import "time"

// CodeType is the target language of a generated implementation.
type CodeType string

const (
	CodePython CodeType = "python"
	CodeNS3    CodeType = "ns3"
	CodeP4     CodeType = "p4"
)

// Concepts holds the conceptual findings of a paper analysis.
type Concepts struct {
	KeyConcepts      []string `json:"key_concepts"`
	Innovations      []string `json:"innovations"`
	TechnicalDetails string   `json:"technical_details"`
}

// Architecture describes the system the paper proposes.
type Architecture struct {
	Overview      string `json:"overview"`
	DataFlow      string `json:"data_flow"`
	ControlFlow   string `json:"control_flow"`
	KeyMechanisms string `json:"key_mechanisms"`
}

// Implementation collects what an implementer needs to know, per target.
type Implementation struct {
	KeyAlgorithms      []string `json:"key_algorithms"`
	PythonRequirements string   `json:"python_requirements"`
	NS3Requirements    string   `json:"ns3_requirements"`
	P4Requirements     string   `json:"p4_requirements"`
	Dependencies       []string `json:"dependencies"`
}

// PaperAnalysis is the immutable structured reading of one paper.
// Re-analysis produces a new id.
type PaperAnalysis struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Authors        []string       `json:"authors"`
	Summary        string         `json:"summary"`
	Concepts       Concepts       `json:"concepts"`
	Architecture   Architecture   `json:"architecture"`
	Implementation Implementation `json:"implementation"`
	SessionID      string         `json:"source_session_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Materialize replaces nil lists with empty ones so they serialize as [].
func (a *PaperAnalysis) Materialize() {
	a.Authors = orEmpty(a.Authors)
	a.Concepts.KeyConcepts = orEmpty(a.Concepts.KeyConcepts)
	a.Concepts.Innovations = orEmpty(a.Concepts.Innovations)
	a.Implementation.KeyAlgorithms = orEmpty(a.Implementation.KeyAlgorithms)
	a.Implementation.Dependencies = orEmpty(a.Implementation.Dependencies)
}

// Auxiliary keys used by the code type variants.
const (
	AuxRequirements           = "requirements"
	AuxUsageExample           = "usage_example"
	AuxSkeletonCode           = "skeleton.code"
	AuxSkeletonNotes          = "skeleton.notes"
	AuxBuildInstructions      = "build_instructions"
	AuxControlPlane           = "control_plane"
	AuxDeploymentInstructions = "deployment_instructions"
)

// CodeArtifact is one version of a generated implementation. Version 0 has
// no parent; each refinement adds one with ParentID set to its source.
type CodeArtifact struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	AnalysisID string            `json:"analysis_id"`
	CodeType   CodeType          `json:"code_type"`
	Title      string            `json:"title"`
	Code       string            `json:"code"`
	Auxiliary  map[string]string `json:"auxiliary"`
	Version    int               `json:"version"`
	ParentID   string            `json:"parent_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Correctness is the correctness section of the evaluation rubric.
type Correctness struct {
	Score    float64  `json:"score"`
	Analysis string   `json:"analysis"`
	Issues   []string `json:"issues"`
}

// Performance is the performance section of the evaluation rubric.
type Performance struct {
	Score        float64  `json:"score"`
	Estimation   string   `json:"estimation"`
	Bottlenecks  []string `json:"bottlenecks"`
	Optimization string   `json:"optimization"`
}

// Improvements is the improvement section of the evaluation rubric.
type Improvements struct {
	Score       float64  `json:"score"`
	Areas       string   `json:"areas"`
	Suggestions []string `json:"suggestions"`
	Priorities  []string `json:"priorities"`
}

// EvaluationResult scores one code artifact.
type EvaluationResult struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	CodeID       string       `json:"code_id"`
	Correctness  Correctness  `json:"correctness"`
	Performance  Performance  `json:"performance"`
	Improvements Improvements `json:"improvements"`
	OverallScore float64      `json:"overall_score"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Materialize replaces nil finding lists with empty ones.
func (e *EvaluationResult) Materialize() {
	e.Correctness.Issues = orEmpty(e.Correctness.Issues)
	e.Performance.Bottlenecks = orEmpty(e.Performance.Bottlenecks)
	e.Improvements.Suggestions = orEmpty(e.Improvements.Suggestions)
	e.Improvements.Priorities = orEmpty(e.Improvements.Priorities)
}

// Changes describes what a refinement iteration did.
type Changes struct {
	Changelog string `json:"changelog"`
	Plan      string `json:"plan"`
}

// RefinementEvaluation compares the evaluations before and after an iteration.
type RefinementEvaluation struct {
	ImprovementAssessment string   `json:"improvement_assessment"`
	RemainingIssues       []string `json:"remaining_issues"`
	ScoreBefore           float64  `json:"score_before"`
	ScoreAfter            float64  `json:"score_after"`
}

// Delta is the overall score change of the iteration.
func (r RefinementEvaluation) Delta() float64 {
	return r.ScoreAfter - r.ScoreBefore
}

// RefinementRecord is one committed refinement iteration.
type RefinementRecord struct {
	ID              string               `json:"id"`
	SessionID       string               `json:"session_id"`
	Iteration       int                  `json:"iteration"`
	FeedbackUsed    string               `json:"feedback_used"`
	Changes         Changes              `json:"changes"`
	Evaluation      RefinementEvaluation `json:"evaluation"`
	SourceCodeID    string               `json:"source_code_id"`
	ResultingCodeID string               `json:"resulting_code_id"`
	CreatedAt       time.Time            `json:"created_at"`
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
