package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/paper2code/internal/db"
)

// ErrInvalidLineage is returned when a code artifact's parent is missing,
// belongs to another session, or does not have a strictly lower version.
var ErrInvalidLineage = errors.New("invalid code lineage")

// querier is implemented by both *db.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides append-only storage for analyses, code artifacts,
// evaluations and refinement records. Lookups of unknown ids return nil, nil.
type Store struct {
	q querier
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{q: database}
}

// WithTx returns a Store whose writes and reads go through tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if created.IsZero() {
		*created = time.Now().UTC()
	}
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// --- analyses ---

// PutAnalysis stores a new analysis, assigning an id and timestamp when unset.
func (s *Store) PutAnalysis(ctx context.Context, a *PaperAnalysis) error {
	stamp(&a.ID, &a.CreatedAt)
	a.Materialize()

	authors, err := marshalJSON(a.Authors)
	if err != nil {
		return fmt.Errorf("marshalling authors: %w", err)
	}
	concepts, err := marshalJSON(a.Concepts)
	if err != nil {
		return fmt.Errorf("marshalling concepts: %w", err)
	}
	arch, err := marshalJSON(a.Architecture)
	if err != nil {
		return fmt.Errorf("marshalling architecture: %w", err)
	}
	impl, err := marshalJSON(a.Implementation)
	if err != nil {
		return fmt.Errorf("marshalling implementation: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO analyses (id, session_id, title, authors, summary, concepts, architecture, implementation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.Title, authors, a.Summary, concepts, arch, impl, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

const analysisColumns = "id, session_id, title, authors, summary, concepts, architecture, implementation, created_at"

// GetAnalysis retrieves an analysis by id.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*PaperAnalysis, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE id = ?", id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListAnalyses returns a session's analyses, oldest first.
func (s *Store) ListAnalyses(ctx context.Context, sessionID string) ([]PaperAnalysis, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+analysisColumns+" FROM analyses WHERE session_id = ? ORDER BY created_at, rowid", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var out []PaperAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAnalysis(sc scanner) (*PaperAnalysis, error) {
	var (
		a                                      PaperAnalysis
		authors, concepts, arch, impl, created string
	)
	if err := sc.Scan(&a.ID, &a.SessionID, &a.Title, &authors, &a.Summary, &concepts, &arch, &impl, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(authors), &a.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors: %w", err)
	}
	if err := json.Unmarshal([]byte(concepts), &a.Concepts); err != nil {
		return nil, fmt.Errorf("decoding concepts: %w", err)
	}
	if err := json.Unmarshal([]byte(arch), &a.Architecture); err != nil {
		return nil, fmt.Errorf("decoding architecture: %w", err)
	}
	if err := json.Unmarshal([]byte(impl), &a.Implementation); err != nil {
		return nil, fmt.Errorf("decoding implementation: %w", err)
	}
	a.CreatedAt = parseTime(created)
	a.Materialize()
	return &a, nil
}

// --- code artifacts ---

// PutCode stores a new code artifact. A parent, when set, must exist in the
// same session with a strictly lower version.
func (s *Store) PutCode(ctx context.Context, c *CodeArtifact) error {
	stamp(&c.ID, &c.CreatedAt)
	if c.Auxiliary == nil {
		c.Auxiliary = map[string]string{}
	}

	var parent sql.NullString
	if c.ParentID != "" {
		p, err := s.GetCode(ctx, c.ParentID)
		if err != nil {
			return fmt.Errorf("loading parent code: %w", err)
		}
		if p == nil || p.SessionID != c.SessionID || p.Version >= c.Version {
			return fmt.Errorf("%w: parent %s of version %d", ErrInvalidLineage, c.ParentID, c.Version)
		}
		parent = sql.NullString{String: c.ParentID, Valid: true}
	} else if c.Version != 0 {
		return fmt.Errorf("%w: version %d without parent", ErrInvalidLineage, c.Version)
	}

	aux, err := marshalJSON(c.Auxiliary)
	if err != nil {
		return fmt.Errorf("marshalling auxiliary: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO code_artifacts (id, session_id, analysis_id, code_type, title, code, auxiliary, version, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.AnalysisID, string(c.CodeType), c.Title, c.Code, aux, c.Version, parent, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting code artifact: %w", err)
	}
	return nil
}

const codeColumns = "id, session_id, analysis_id, code_type, title, code, auxiliary, version, parent_id, created_at"

// GetCode retrieves a code artifact by id.
func (s *Store) GetCode(ctx context.Context, id string) (*CodeArtifact, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+codeColumns+" FROM code_artifacts WHERE id = ?", id)
	c, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListCode returns a session's code artifacts, oldest first.
func (s *Store) ListCode(ctx context.Context, sessionID string) ([]CodeArtifact, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+codeColumns+" FROM code_artifacts WHERE session_id = ? ORDER BY created_at, rowid", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying code artifacts: %w", err)
	}
	defer rows.Close()

	var out []CodeArtifact
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Lineage returns the chain ending at codeID, root (version 0) first.
func (s *Store) Lineage(ctx context.Context, codeID string) ([]CodeArtifact, error) {
	var chain []CodeArtifact
	for id := codeID; id != ""; {
		c, err := s.GetCode(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			if len(chain) == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: missing ancestor %s", ErrInvalidLineage, id)
		}
		chain = append(chain, *c)
		id = c.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func scanCode(sc scanner) (*CodeArtifact, error) {
	var (
		c                      CodeArtifact
		codeType, aux, created string
		parent                 sql.NullString
	)
	if err := sc.Scan(&c.ID, &c.SessionID, &c.AnalysisID, &codeType, &c.Title, &c.Code, &aux, &c.Version, &parent, &created); err != nil {
		return nil, err
	}
	c.CodeType = CodeType(codeType)
	if err := json.Unmarshal([]byte(aux), &c.Auxiliary); err != nil {
		return nil, fmt.Errorf("decoding auxiliary: %w", err)
	}
	if c.Auxiliary == nil {
		c.Auxiliary = map[string]string{}
	}
	c.ParentID = parent.String
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// --- evaluations ---

// PutEvaluation stores a new evaluation result.
func (s *Store) PutEvaluation(ctx context.Context, e *EvaluationResult) error {
	stamp(&e.ID, &e.CreatedAt)
	e.Materialize()

	correctness, err := marshalJSON(e.Correctness)
	if err != nil {
		return fmt.Errorf("marshalling correctness: %w", err)
	}
	performance, err := marshalJSON(e.Performance)
	if err != nil {
		return fmt.Errorf("marshalling performance: %w", err)
	}
	improvements, err := marshalJSON(e.Improvements)
	if err != nil {
		return fmt.Errorf("marshalling improvements: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO evaluations (id, session_id, code_id, correctness, performance, improvements, overall_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.CodeID, correctness, performance, improvements, e.OverallScore, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting evaluation: %w", err)
	}
	return nil
}

const evaluationColumns = "id, session_id, code_id, correctness, performance, improvements, overall_score, created_at"

// GetEvaluation retrieves an evaluation by id.
func (s *Store) GetEvaluation(ctx context.Context, id string) (*EvaluationResult, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+evaluationColumns+" FROM evaluations WHERE id = ?", id)
	e, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// LatestEvaluation returns the most recent evaluation of codeID.
func (s *Store) LatestEvaluation(ctx context.Context, codeID string) (*EvaluationResult, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+evaluationColumns+" FROM evaluations WHERE code_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1", codeID)
	e, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func scanEvaluation(sc scanner) (*EvaluationResult, error) {
	var (
		e                                               EvaluationResult
		correctness, performance, improvements, created string
	)
	if err := sc.Scan(&e.ID, &e.SessionID, &e.CodeID, &correctness, &performance, &improvements, &e.OverallScore, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(correctness), &e.Correctness); err != nil {
		return nil, fmt.Errorf("decoding correctness: %w", err)
	}
	if err := json.Unmarshal([]byte(performance), &e.Performance); err != nil {
		return nil, fmt.Errorf("decoding performance: %w", err)
	}
	if err := json.Unmarshal([]byte(improvements), &e.Improvements); err != nil {
		return nil, fmt.Errorf("decoding improvements: %w", err)
	}
	e.CreatedAt = parseTime(created)
	e.Materialize()
	return &e, nil
}

// --- refinements ---

// PutRefinement appends a refinement record.
func (s *Store) PutRefinement(ctx context.Context, r *RefinementRecord) error {
	stamp(&r.ID, &r.CreatedAt)
	r.Evaluation.RemainingIssues = orEmpty(r.Evaluation.RemainingIssues)

	changes, err := marshalJSON(r.Changes)
	if err != nil {
		return fmt.Errorf("marshalling changes: %w", err)
	}
	eval, err := marshalJSON(r.Evaluation)
	if err != nil {
		return fmt.Errorf("marshalling refinement evaluation: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO refinements (id, session_id, iteration, feedback_used, changes, evaluation, source_code_id, resulting_code_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Iteration, r.FeedbackUsed, changes, eval, r.SourceCodeID, r.ResultingCodeID, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting refinement: %w", err)
	}
	return nil
}

const refinementColumns = "id, session_id, iteration, feedback_used, changes, evaluation, source_code_id, resulting_code_id, created_at"

// ListRefinements returns every refinement record of a session, oldest first.
func (s *Store) ListRefinements(ctx context.Context, sessionID string) ([]RefinementRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+refinementColumns+" FROM refinements WHERE session_id = ? ORDER BY created_at, rowid", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying refinements: %w", err)
	}
	defer rows.Close()

	var out []RefinementRecord
	for rows.Next() {
		r, err := scanRefinement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// refinementFor returns the record that produced codeID, if any.
func (s *Store) refinementFor(ctx context.Context, codeID string) (*RefinementRecord, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+refinementColumns+" FROM refinements WHERE resulting_code_id = ?", codeID)
	r, err := scanRefinement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// History returns the refinement records along the lineage ending at codeID,
// first iteration first. A version 0 artifact has an empty history.
func (s *Store) History(ctx context.Context, codeID string) ([]RefinementRecord, error) {
	chain, err := s.Lineage(ctx, codeID)
	if err != nil {
		return nil, err
	}

	history := []RefinementRecord{}
	for _, c := range chain {
		if c.ParentID == "" {
			continue
		}
		r, err := s.refinementFor(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("loading refinement for %s: %w", c.ID, err)
		}
		if r != nil {
			history = append(history, *r)
		}
	}
	return history, nil
}

func scanRefinement(sc scanner) (*RefinementRecord, error) {
	var (
		r                      RefinementRecord
		changes, eval, created string
	)
	if err := sc.Scan(&r.ID, &r.SessionID, &r.Iteration, &r.FeedbackUsed, &changes, &eval, &r.SourceCodeID, &r.ResultingCodeID, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(changes), &r.Changes); err != nil {
		return nil, fmt.Errorf("decoding changes: %w", err)
	}
	if err := json.Unmarshal([]byte(eval), &r.Evaluation); err != nil {
		return nil, fmt.Errorf("decoding refinement evaluation: %w", err)
	}
	r.Evaluation.RemainingIssues = orEmpty(r.Evaluation.RemainingIssues)
	r.CreatedAt = parseTime(created)
	return &r, nil
}

// Counts holds the number of stored artifacts of each kind.
type Counts struct {
	Analyses    int `json:"analyses"`
	Code        int `json:"code_artifacts"`
	Evaluations int `json:"evaluations"`
	Refinements int `json:"refinements"`
}

// Count returns artifact totals across all sessions.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.q.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM analyses),
		(SELECT COUNT(*) FROM code_artifacts),
		(SELECT COUNT(*) FROM evaluations),
		(SELECT COUNT(*) FROM refinements)`).Scan(&c.Analyses, &c.Code, &c.Evaluations, &c.Refinements)
	if err != nil {
		return Counts{}, fmt.Errorf("counting artifacts: %w", err)
	}
	return c, nil
}
