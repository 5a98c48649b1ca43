package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/paper2code/internal/db"
)

// RefineState tracks the refinement state machine of a session.
type RefineState string

const (
	StateReady    RefineState = "READY"
	StateRefining RefineState = "REFINING"
	StateFailed   RefineState = "FAILED"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a session's conversation log.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one conversation and its current-artifact pointers.
type Session struct {
	ID                  string      `json:"id"`
	RefineState         RefineState `json:"refinement_state"`
	CurrentAnalysisID   string      `json:"current_analysis_id,omitempty"`
	CurrentCodeID       string      `json:"current_code_id,omitempty"`
	CurrentEvaluationID string      `json:"current_evaluation_id,omitempty"`
	Turns               []Turn      `json:"turns,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Pointers is a full assignment of a session's current-artifact ids.
// Empty strings clear a pointer.
type Pointers struct {
	AnalysisID   string
	CodeID       string
	EvaluationID string
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists sessions and their turns.
type Store struct {
	q querier
}

func NewStore(database *db.DB) *Store {
	return &Store{q: database}
}

// WithTx returns a Store that runs through tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts an empty session if id is not taken.
func (s *Store) Create(ctx context.Context, id string) error {
	ts := now()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (id, refine_state, created_at, updated_at)
		VALUES (?, 'READY', ?, ?)
		ON CONFLICT(id) DO NOTHING`, id, ts, ts)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// Get returns a session without its turns, or nil if unknown.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sess                 Session
		state                string
		analysis, code, eval sql.NullString
		createdAt, updatedAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, refine_state, current_analysis_id, current_code_id, current_evaluation_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &state, &analysis, &code, &eval, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	sess.RefineState = RefineState(state)
	sess.CurrentAnalysisID = analysis.String
	sess.CurrentCodeID = code.String
	sess.CurrentEvaluationID = eval.String
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// AppendTurn adds a turn to the end of a session's log.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, role Role, text string) (*Turn, error) {
	t := &Turn{ID: uuid.New().String(), Role: role, Text: text, CreatedAt: time.Now().UTC()}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, role, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, sessionID, string(role), text, t.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting turn: %w", err)
	}
	return t, nil
}

// Turns returns a session's log in insertion order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, role, text, created_at FROM turns WHERE session_id = ? ORDER BY seq", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	out := []Turn{}
	for rows.Next() {
		var (
			t        Turn
			role, ts string
		)
		if err := rows.Scan(&t.ID, &role, &t.Text, &ts); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = Role(role)
		t.CreatedAt = parseTime(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetPointers rebinds all three current-artifact pointers and the refine
// state in one statement.
func (s *Store) SetPointers(ctx context.Context, id string, p Pointers, state RefineState) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sessions
		SET current_analysis_id = ?, current_code_id = ?, current_evaluation_id = ?, refine_state = ?, updated_at = ?
		WHERE id = ?`,
		nullable(p.AnalysisID), nullable(p.CodeID), nullable(p.EvaluationID), string(state), now(), id)
	if err != nil {
		return fmt.Errorf("updating session pointers: %w", err)
	}
	return expectRow(res, id)
}

// SetRefineState updates only the refinement state.
func (s *Store) SetRefineState(ctx context.Context, id string, state RefineState) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE sessions SET refine_state = ?, updated_at = ? WHERE id = ?", string(state), now(), id)
	if err != nil {
		return fmt.Errorf("updating refine state: %w", err)
	}
	return expectRow(res, id)
}

// RecoverInterrupted marks sessions left REFINING by a previous process as
// FAILED and returns how many were changed.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE sessions SET refine_state = 'FAILED', updated_at = ? WHERE refine_state = 'REFINING'", now())
	if err != nil {
		return 0, fmt.Errorf("recovering sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Count returns the number of sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}
