package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for callers such as the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUpstream
	KindStateConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindUpstream:
		return "UpstreamError"
	case KindStateConflict:
		return "StateConflictError"
	default:
		return "InternalError"
	}
}

// Stage names the pipeline stage an error came from.
type Stage string

const (
	StageAnalysis   Stage = "analysis"
	StageGeneration Stage = "generation"
	StageEvaluation Stage = "evaluation"
	StageRefinement Stage = "refinement"
	StageSession    Stage = "session"
)

// ErrUnknownCodeType is wrapped by the validation error returned for a
// code type outside python, ns3 and p4.
var ErrUnknownCodeType = errors.New("UnknownCodeType")

// Error is a classified stage failure. Msg is safe to show to a client for
// validation and state-conflict kinds; Err carries upstream detail for logs.
type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	Err   error
}

// Name returns the stage-specific error name, e.g. "GenerationError".
func (e *Error) Name() string {
	switch e.Stage {
	case StageAnalysis:
		return "AnalysisError"
	case StageGeneration:
		return "GenerationError"
	case StageEvaluation:
		return "EvaluationError"
	case StageRefinement:
		return "RefinementError"
	default:
		return "SessionError"
	}
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s (%s): %s", e.Name(), e.Kind, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, stage Stage, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Validationf reports invalid caller input.
func Validationf(stage Stage, format string, args ...any) *Error {
	return NewError(KindValidation, stage, nil, format, args...)
}

// StateConflictf reports an operation invoked before its prerequisites.
func StateConflictf(stage Stage, format string, args ...any) *Error {
	return NewError(KindStateConflict, stage, nil, format, args...)
}

// Upstream wraps a generation or retrieval failure.
func Upstream(stage Stage, err error, msg string) *Error {
	return &Error{Kind: KindUpstream, Stage: stage, Msg: msg, Err: err}
}

// Internal wraps a storage or programming fault.
func Internal(stage Stage, err error, msg string) *Error {
	return &Error{Kind: KindInternal, Stage: stage, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// restage re-labels a classified error as coming from stage, keeping its
// kind. Unclassified errors become internal.
func restage(stage Stage, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return &Error{Kind: pe.Kind, Stage: stage, Msg: pe.Msg, Err: pe}
	}
	return Internal(stage, err, "unexpected failure")
}
