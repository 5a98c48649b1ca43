package session

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/db"
	"github.com/ziadkadry99/paper2code/internal/metrics"
	"github.com/ziadkadry99/paper2code/internal/pipeline"
)

// Options configures a Manager.
type Options struct {
	Locker Locker              // defaults to an in-process MemoryLocker
	Policy pipeline.StopPolicy // advisory stop policy reported after each refinement
	TopK   int                 // passages retrieved for chat answers
}

// Manager owns session state. Every operation that reads and rebinds a
// session's current-artifact pointers runs under that session's lock, and
// stage work runs on a context detached from the caller so an abandoned
// request still commits or discards as a whole.
type Manager struct {
	db        *db.DB
	sessions  *Store
	artifacts *artifact.Store
	pipeline  *pipeline.Pipeline
	locker    Locker
	policy    pipeline.StopPolicy
	topK      int
}

// NewManager creates a Manager over database and p.
func NewManager(database *db.DB, p *pipeline.Pipeline, opts Options) *Manager {
	if opts.Locker == nil {
		opts.Locker = NewMemoryLocker()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Manager{
		db:        database,
		sessions:  NewStore(database),
		artifacts: artifact.NewStore(database),
		pipeline:  p,
		locker:    opts.Locker,
		policy:    opts.Policy,
		topK:      opts.TopK,
	}
}

// Artifacts returns the artifact store the manager commits to.
func (m *Manager) Artifacts() *artifact.Store { return m.artifacts }

// Pipeline returns the stage pipeline.
func (m *Manager) Pipeline() *pipeline.Pipeline { return m.pipeline }

// Recover marks refinements interrupted by a previous shutdown as FAILED.
// Their pointers were never rebound, so the prior artifacts stay current.
func (m *Manager) Recover(ctx context.Context) error {
	n, err := m.sessions.RecoverInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("session: marked %d interrupted refinement(s) as FAILED", n)
	}
	return nil
}

// GetOrCreate returns the session with id, creating an empty one if it
// does not exist. An empty id creates a session with a fresh id.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if err := m.sessions.Create(ctx, id); err != nil {
		return nil, pipeline.Internal(pipeline.StageSession, err, "could not create session")
	}
	sess, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageSession, err, "could not load session")
	}
	return sess, nil
}

// RecordTurn appends a turn to the session's log, creating the session if
// needed.
func (m *Manager) RecordTurn(ctx context.Context, id string, role Role, text string) (*Turn, error) {
	if !role.Valid() {
		return nil, pipeline.Validationf(pipeline.StageSession, "unknown role %q", role)
	}
	sess, err := m.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := m.sessions.AppendTurn(ctx, sess.ID, role, text)
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageSession, err, "could not record turn")
	}
	return t, nil
}

// Session returns a session with its turns.
func (m *Manager) Session(ctx context.Context, id string) (*Session, error) {
	sess, err := m.require(ctx, id, pipeline.StageSession)
	if err != nil {
		return nil, err
	}
	turns, err := m.sessions.Turns(ctx, sess.ID)
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageSession, err, "could not load turns")
	}
	sess.Turns = turns
	return sess, nil
}

// AnalyzePaper analyzes extracted paper text and binds the result as the
// session's current analysis. The analysis is then indexed into the
// knowledge base; indexing failures are logged only.
func (m *Manager) AnalyzePaper(ctx context.Context, sessionID, paperText, titleHint string) (*artifact.PaperAnalysis, error) {
	ctx = context.WithoutCancel(ctx)

	created, err := m.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unlock, err := m.acquire(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := m.require(ctx, created.ID, pipeline.StageAnalysis)
	if err != nil {
		return nil, err
	}

	an, err := m.pipeline.Analyze(ctx, sess.ID, paperText, titleHint)
	if err != nil {
		return nil, err
	}

	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.artifacts.WithTx(tx).PutAnalysis(ctx, an); err != nil {
			return err
		}
		return m.sessions.WithTx(tx).SetPointers(ctx, sess.ID, Pointers{
			AnalysisID:   an.ID,
			CodeID:       sess.CurrentCodeID,
			EvaluationID: sess.CurrentEvaluationID,
		}, sess.RefineState)
	})
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageAnalysis, err, "could not save analysis")
	}

	if aug := m.pipeline.Augmenter(); aug != nil {
		if n, err := aug.IndexAnalysis(ctx, an); err != nil {
			log.Printf("session: %s: indexing analysis %s: %v", sess.ID, an.ID, err)
		} else {
			log.Printf("session: %s: indexed %d passages from %q", sess.ID, n, an.Title)
		}
	}
	return an, nil
}

// GenerateCode generates version 0 of a new lineage from an analysis of the
// session (the current one when analysisID is empty) and makes it current.
func (m *Manager) GenerateCode(ctx context.Context, sessionID, analysisID, codeType string) (*artifact.CodeArtifact, error) {
	ct, err := pipeline.ParseCodeType(codeType)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	unlock, sess, err := m.lockSession(ctx, sessionID, pipeline.StageGeneration)
	if err != nil {
		return nil, err
	}
	defer unlock()

	an, err := m.resolveAnalysis(ctx, sess, analysisID, pipeline.StageGeneration)
	if err != nil {
		return nil, err
	}

	gen, err := m.pipeline.Generate(ctx, an, ct)
	if err != nil {
		return nil, err
	}
	code := gen.Code

	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.artifacts.WithTx(tx).PutCode(ctx, code); err != nil {
			return err
		}
		return m.sessions.WithTx(tx).SetPointers(ctx, sess.ID, Pointers{AnalysisID: an.ID, CodeID: code.ID}, StateReady)
	})
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageGeneration, err, "could not save code")
	}
	log.Printf("session: %s: generated %s code %s using %d passage(s)", sess.ID, ct, code.ID, len(gen.Passages))
	return code, nil
}

// Evaluate evaluates a code artifact of the session (the current one when
// codeID is empty) and makes that artifact and its evaluation current.
// Evaluating an earlier version re-enters the lineage at that version. The
// code is judged against the analysis it was generated from; the session's
// current analysis is left as is.
func (m *Manager) Evaluate(ctx context.Context, sessionID, analysisID, codeID string) (*artifact.EvaluationResult, error) {
	ctx = context.WithoutCancel(ctx)

	unlock, sess, err := m.lockSession(ctx, sessionID, pipeline.StageEvaluation)
	if err != nil {
		return nil, err
	}
	defer unlock()

	code, err := m.resolveCode(ctx, sess, codeID, pipeline.StageEvaluation)
	if err != nil {
		return nil, err
	}
	an, err := m.analysisOf(ctx, code, analysisID, pipeline.StageEvaluation)
	if err != nil {
		return nil, err
	}

	e, err := m.pipeline.Evaluate(ctx, an, code)
	if err != nil {
		return nil, err
	}

	state := sess.RefineState
	if code.ID != sess.CurrentCodeID {
		state = StateReady
	}
	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.artifacts.WithTx(tx).PutEvaluation(ctx, e); err != nil {
			return err
		}
		return m.sessions.WithTx(tx).SetPointers(ctx, sess.ID, Pointers{
			AnalysisID:   sess.CurrentAnalysisID,
			CodeID:       code.ID,
			EvaluationID: e.ID,
		}, state)
	})
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageEvaluation, err, "could not save evaluation")
	}
	return e, nil
}

// RefineResult is the committed outcome of one refinement iteration.
type RefineResult struct {
	Code       *artifact.CodeArtifact      `json:"refined_code"`
	Evaluation *artifact.EvaluationResult  `json:"evaluation"`
	Record     *artifact.RefinementRecord  `json:"record"`
	History    []artifact.RefinementRecord `json:"refinement_history"`
	Stop       pipeline.StopDecision       `json:"stop"`
}

// Refine runs exactly one refinement iteration on the session's current
// code and evaluation. codeID, when given, must name the current code.
// On failure the session is marked FAILED and nothing is committed.
func (m *Manager) Refine(ctx context.Context, sessionID, analysisID, codeID, feedback string) (*RefineResult, error) {
	ctx = context.WithoutCancel(ctx)

	unlock, sess, err := m.lockSession(ctx, sessionID, pipeline.StageRefinement)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if sess.CurrentCodeID == "" {
		return nil, pipeline.StateConflictf(pipeline.StageRefinement, "no code to refine; generate code first")
	}
	if codeID != "" && codeID != sess.CurrentCodeID {
		if _, err := m.resolveCode(ctx, sess, codeID, pipeline.StageRefinement); err != nil {
			return nil, err
		}
		return nil, pipeline.StateConflictf(pipeline.StageRefinement,
			"code %s is not the current code (%s); evaluate it first to refine from it", codeID, sess.CurrentCodeID)
	}
	code, err := m.resolveCode(ctx, sess, "", pipeline.StageRefinement)
	if err != nil {
		return nil, err
	}
	if sess.CurrentEvaluationID == "" {
		return nil, pipeline.StateConflictf(pipeline.StageRefinement, "no evaluation for the current code; evaluate it first")
	}
	eval, err := m.artifacts.GetEvaluation(ctx, sess.CurrentEvaluationID)
	if err != nil || eval == nil {
		return nil, pipeline.Internal(pipeline.StageRefinement, fmt.Errorf("evaluation %s: %v", sess.CurrentEvaluationID, err), "could not load evaluation")
	}
	an, err := m.analysisOf(ctx, code, analysisID, pipeline.StageRefinement)
	if err != nil {
		return nil, err
	}
	history, err := m.artifacts.History(ctx, code.ID)
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageRefinement, err, "could not load refinement history")
	}

	if err := m.sessions.SetRefineState(ctx, sess.ID, StateRefining); err != nil {
		return nil, pipeline.Internal(pipeline.StageRefinement, err, "could not start refinement")
	}

	out, err := m.pipeline.Refine(ctx, pipeline.RefineInput{
		Analysis:   an,
		Code:       code,
		Evaluation: eval,
		Feedback:   feedback,
		Iteration:  len(history) + 1,
	})
	if err == nil {
		err = m.commitRefinement(ctx, sess, out)
	}
	metrics.ObserveRefinement(err)
	if err != nil {
		if serr := m.sessions.SetRefineState(ctx, sess.ID, StateFailed); serr != nil {
			log.Printf("session: %s: marking refinement failed: %v", sess.ID, serr)
		}
		return nil, err
	}

	history = append(history, *out.Record)
	decision := m.policy.Decide(history)
	log.Printf("session: %s: refinement %d committed (%.2f -> %.2f), stop=%v",
		sess.ID, out.Record.Iteration, out.Record.Evaluation.ScoreBefore, out.Record.Evaluation.ScoreAfter, decision.Stop)

	return &RefineResult{
		Code:       out.Code,
		Evaluation: out.Evaluation,
		Record:     out.Record,
		History:    history,
		Stop:       decision,
	}, nil
}

// commitRefinement stores the iteration's artifacts and rebinds the code and
// evaluation pointers. The analysis pointer is carried over unchanged.
func (m *Manager) commitRefinement(ctx context.Context, sess *Session, out *pipeline.RefineOutput) error {
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		arts := m.artifacts.WithTx(tx)
		if err := arts.PutCode(ctx, out.Code); err != nil {
			return err
		}
		if err := arts.PutEvaluation(ctx, out.Evaluation); err != nil {
			return err
		}
		if err := arts.PutRefinement(ctx, out.Record); err != nil {
			return err
		}
		return m.sessions.WithTx(tx).SetPointers(ctx, sess.ID, Pointers{
			AnalysisID:   sess.CurrentAnalysisID,
			CodeID:       out.Code.ID,
			EvaluationID: out.Evaluation.ID,
		}, StateReady)
	})
	if err != nil {
		return pipeline.Internal(pipeline.StageRefinement, err, "could not save refinement")
	}
	return nil
}

// History returns the refinement history of a code lineage, oldest first.
// An empty codeID means the session's current code; a session without code
// has an empty history.
func (m *Manager) History(ctx context.Context, sessionID, codeID string) ([]artifact.RefinementRecord, error) {
	sess, err := m.require(ctx, sessionID, pipeline.StageSession)
	if err != nil {
		return nil, err
	}
	if codeID == "" && sess.CurrentCodeID == "" {
		return []artifact.RefinementRecord{}, nil
	}
	code, err := m.resolveCode(ctx, sess, codeID, pipeline.StageSession)
	if err != nil {
		return nil, err
	}
	history, err := m.artifacts.History(ctx, code.ID)
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageSession, err, "could not load refinement history")
	}
	return history, nil
}

// Stats summarizes what has been stored across all sessions.
type Stats struct {
	Sessions int `json:"sessions"`
	artifact.Counts
}

// Stats returns session and artifact totals.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	n, err := m.sessions.Count(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := m.artifacts.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Sessions: n, Counts: counts}, nil
}

// ChatReply is the assistant's answer to one chat message.
type ChatReply struct {
	SessionID string `json:"conversation_id"`
	Response  string `json:"response"`
}

// Chat replies to a user message. Questions are answered from the
// knowledge base; other messages get a status reply describing the
// session's next step. The message and reply are recorded together once
// the reply exists, so a failed answer leaves the log untouched.
func (m *Manager) Chat(ctx context.Context, sessionID, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, pipeline.Validationf(pipeline.StageSession, "message is required")
	}
	ctx = context.WithoutCancel(ctx)

	sess, err := m.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	status := m.status(ctx, sess)
	var reply string
	if aug := m.pipeline.Augmenter(); IsQuestion(message) && aug != nil {
		passages, err := aug.Retrieve(ctx, message, m.topK)
		if err != nil {
			return nil, pipeline.Upstream(pipeline.StageSession, err, "knowledge retrieval failed")
		}
		reply, err = m.pipeline.Answer(ctx, message, passages, status)
		if err != nil {
			return nil, pipeline.Upstream(pipeline.StageSession, err, "answer generation failed")
		}
	} else {
		reply = "Message received. " + status
	}

	if _, err := m.RecordTurn(ctx, sess.ID, RoleUser, message); err != nil {
		return nil, err
	}
	if _, err := m.RecordTurn(ctx, sess.ID, RoleAssistant, reply); err != nil {
		return nil, err
	}
	return &ChatReply{SessionID: sess.ID, Response: reply}, nil
}

// status describes where a session is in the pipeline and what to do next.
func (m *Manager) status(ctx context.Context, sess *Session) string {
	if sess.CurrentAnalysisID == "" {
		return "No paper has been analyzed yet; upload a PDF to get started."
	}
	title := "the paper"
	if an, _ := m.artifacts.GetAnalysis(ctx, sess.CurrentAnalysisID); an != nil && an.Title != "" {
		title = fmt.Sprintf("%q", an.Title)
	}
	if sess.CurrentCodeID == "" {
		return fmt.Sprintf("The analysis of %s is ready; generate python, ns3 or p4 code next.", title)
	}
	code, _ := m.artifacts.GetCode(ctx, sess.CurrentCodeID)
	if code == nil {
		return fmt.Sprintf("The analysis of %s is ready.", title)
	}
	if sess.CurrentEvaluationID == "" {
		return fmt.Sprintf("Version %d of the %s implementation of %s is ready; evaluate it next.", code.Version, code.CodeType, title)
	}

	var s string
	if e, _ := m.artifacts.GetEvaluation(ctx, sess.CurrentEvaluationID); e != nil {
		s = fmt.Sprintf("Version %d of the %s implementation of %s scores %.2f overall; refine it, optionally with feedback.",
			code.Version, code.CodeType, title, e.OverallScore)
	} else {
		s = fmt.Sprintf("Version %d of the %s implementation of %s has been evaluated.", code.Version, code.CodeType, title)
	}
	if sess.RefineState == StateFailed {
		s = "The last refinement failed and was discarded. " + s
	}
	return s
}

// --- helpers ---

func (m *Manager) acquire(ctx context.Context, id string) (func(), error) {
	start := time.Now()
	unlock, err := m.locker.Lock(ctx, id)
	metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, pipeline.Internal(pipeline.StageSession, err, "could not acquire session lock")
	}
	return unlock, nil
}

// lockSession takes the session's lock and loads it. The caller must call
// unlock.
func (m *Manager) lockSession(ctx context.Context, id string, stage pipeline.Stage) (func(), *Session, error) {
	if id == "" {
		return nil, nil, pipeline.Validationf(stage, "conversation_id is required")
	}
	unlock, err := m.acquire(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sess, err := m.require(ctx, id, stage)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return unlock, sess, nil
}

func (m *Manager) require(ctx context.Context, id string, stage pipeline.Stage) (*Session, error) {
	if id == "" {
		return nil, pipeline.Validationf(stage, "conversation_id is required")
	}
	sess, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, pipeline.Internal(stage, err, "could not load session")
	}
	if sess == nil {
		return nil, pipeline.Validationf(stage, "unknown conversation_id %q", id)
	}
	return sess, nil
}

func (m *Manager) resolveAnalysis(ctx context.Context, sess *Session, id string, stage pipeline.Stage) (*artifact.PaperAnalysis, error) {
	if id == "" {
		if sess.CurrentAnalysisID == "" {
			return nil, pipeline.StateConflictf(stage, "no paper analysis in this conversation; upload a paper first")
		}
		id = sess.CurrentAnalysisID
	}
	an, err := m.artifacts.GetAnalysis(ctx, id)
	if err != nil {
		return nil, pipeline.Internal(stage, err, "could not load analysis")
	}
	if an == nil || an.SessionID != sess.ID {
		return nil, pipeline.Validationf(stage, "unknown paper_id %q", id)
	}
	return an, nil
}

func (m *Manager) resolveCode(ctx context.Context, sess *Session, id string, stage pipeline.Stage) (*artifact.CodeArtifact, error) {
	if id == "" {
		if sess.CurrentCodeID == "" {
			return nil, pipeline.StateConflictf(stage, "no code in this conversation; generate code first")
		}
		id = sess.CurrentCodeID
	}
	code, err := m.artifacts.GetCode(ctx, id)
	if err != nil {
		return nil, pipeline.Internal(stage, err, "could not load code")
	}
	if code == nil || code.SessionID != sess.ID {
		return nil, pipeline.Validationf(stage, "unknown code_id %q", id)
	}
	return code, nil
}

// analysisOf loads the analysis a code artifact was generated from.
// analysisID, when given, must match it.
func (m *Manager) analysisOf(ctx context.Context, code *artifact.CodeArtifact, analysisID string, stage pipeline.Stage) (*artifact.PaperAnalysis, error) {
	if analysisID != "" && analysisID != code.AnalysisID {
		return nil, pipeline.Validationf(stage, "code %s was not generated from paper_id %q", code.ID, analysisID)
	}
	an, err := m.artifacts.GetAnalysis(ctx, code.AnalysisID)
	if err != nil || an == nil {
		return nil, pipeline.Internal(stage, fmt.Errorf("analysis %s: %v", code.AnalysisID, err), "could not load analysis")
	}
	return an, nil
}
