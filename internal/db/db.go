package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with paper2code-specific helpers.
type DB struct {
	*sql.DB
	path string
}

const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the database file path, or ":memory:".
func (d *DB) Path() string {
	return d.path
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. fn must only use tx; the in-memory database has a
// single connection and a query through d would block on it.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
// JSON-valued columns hold the nested sections of each artifact.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    refine_state TEXT NOT NULL DEFAULT 'READY' CHECK(refine_state IN ('READY','REFINING','FAILED')),
    current_analysis_id TEXT,
    current_code_id TEXT,
    current_evaluation_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK(role IN ('user','assistant')),
    text TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);

CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    title TEXT NOT NULL DEFAULT '',
    authors TEXT NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL DEFAULT '',
    concepts TEXT NOT NULL DEFAULT '{}',
    architecture TEXT NOT NULL DEFAULT '{}',
    implementation TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_session ON analyses(session_id);

CREATE TABLE IF NOT EXISTS code_artifacts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    analysis_id TEXT NOT NULL REFERENCES analyses(id),
    code_type TEXT NOT NULL CHECK(code_type IN ('python','ns3','p4')),
    title TEXT NOT NULL DEFAULT '',
    code TEXT NOT NULL,
    auxiliary TEXT NOT NULL DEFAULT '{}',
    version INTEGER NOT NULL DEFAULT 0 CHECK(version >= 0),
    parent_id TEXT REFERENCES code_artifacts(id),
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_code_session ON code_artifacts(session_id);
CREATE INDEX IF NOT EXISTS idx_code_parent ON code_artifacts(parent_id);

CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    code_id TEXT NOT NULL REFERENCES code_artifacts(id),
    correctness TEXT NOT NULL DEFAULT '{}',
    performance TEXT NOT NULL DEFAULT '{}',
    improvements TEXT NOT NULL DEFAULT '{}',
    overall_score REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_code ON evaluations(code_id);

CREATE TABLE IF NOT EXISTS refinements (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    iteration INTEGER NOT NULL CHECK(iteration >= 1),
    feedback_used TEXT NOT NULL DEFAULT '',
    changes TEXT NOT NULL DEFAULT '{}',
    evaluation TEXT NOT NULL DEFAULT '{}',
    source_code_id TEXT NOT NULL REFERENCES code_artifacts(id),
    resulting_code_id TEXT NOT NULL UNIQUE REFERENCES code_artifacts(id),
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refinements_session ON refinements(session_id);
`
