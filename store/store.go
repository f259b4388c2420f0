// Package store persists parse and validation runs to SQLite. One run row
// records the input document and summary stats; its extracted variables or
// validation findings hang off it in child tables, ordered by position.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver dbopen defaults to

	"github.com/veskar/trialkit/crf"
	"github.com/veskar/trialkit/dbopen"
	"github.com/veskar/trialkit/validate"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    filename    TEXT NOT NULL,
    sha256      TEXT,
    size_bytes  INTEGER,
    stats       TEXT,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS variables (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    pos         INTEGER NOT NULL,
    name        TEXT NOT NULL,
    expression  TEXT,
    coding      TEXT,
    source      TEXT,
    PRIMARY KEY (run_id, pos)
);

CREATE TABLE IF NOT EXISTS findings (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    pos         INTEGER NOT NULL,
    row         INTEGER NOT NULL,
    field       TEXT NOT NULL,
    rule        TEXT NOT NULL,
    severity    TEXT NOT NULL,
    message     TEXT,
    PRIMARY KEY (run_id, pos)
);

CREATE INDEX IF NOT EXISTS idx_runs_kind    ON runs(kind, created_at);
CREATE INDEX IF NOT EXISTS idx_vars_name    ON variables(name);
`

// Run kinds.
const (
	KindCRF      = "crf"
	KindCRFSpec  = "crfspec"
	KindProtocol = "protocol"
	KindValidate = "validate"
)

// Run is one recorded parse or validation.
type Run struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Filename  string `json:"filename"`
	SHA256    string `json:"sha256,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Stats     string `json:"stats,omitempty"` // JSON blob, shape depends on kind
	CreatedAt string `json:"created_at"`
}

// Store wraps the SQLite database holding runs and their records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the run database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(schema), dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory() (*Store, error) {
	db, err := dbopen.Open("file::memory:?cache=shared", dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for sharing with observability layers.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// CreateRun inserts a run row. CreatedAt is set when empty.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, filename, sha256, size_bytes, stats, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Filename, r.SHA256, r.SizeBytes, r.Stats, r.CreatedAt,
	)
	return err
}

// GetRun returns a run by ID. Returns nil, nil if not found.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, filename, sha256, size_bytes, stats, created_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Kind, &r.Filename, &r.SHA256, &r.SizeBytes, &r.Stats, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns runs newest first, optionally filtered by kind.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, kind, filename, sha256, size_bytes, stats, created_at FROM runs`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.Kind, &r.Filename, &r.SHA256, &r.SizeBytes, &r.Stats, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run; CASCADE clears its variables and findings.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	return err
}

// SaveVariables stores a run's variable records in one transaction,
// preserving their order.
func (s *Store) SaveVariables(ctx context.Context, runID string, vars []crf.Variable) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for i, v := range vars {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO variables (run_id, pos, name, expression, coding, source)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				runID, i, v.Name, v.Expression, v.Coding, v.Source,
			)
			if err != nil {
				return fmt.Errorf("insert variable %s: %w", v.Name, err)
			}
		}
		return nil
	})
}

// Variables returns a run's variable records in stored order.
func (s *Store) Variables(ctx context.Context, runID string) ([]crf.Variable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, expression, coding, source FROM variables WHERE run_id = ? ORDER BY pos`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vars []crf.Variable
	for rows.Next() {
		var v crf.Variable
		if err := rows.Scan(&v.Name, &v.Expression, &v.Coding, &v.Source); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// SaveFindings stores a run's validation findings in one transaction.
func (s *Store) SaveFindings(ctx context.Context, runID string, findings []validate.Finding) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for i, f := range findings {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO findings (run_id, pos, row, field, rule, severity, message)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, i, f.Row, f.Field, f.Rule, f.Severity, f.Message,
			)
			if err != nil {
				return fmt.Errorf("insert finding: %w", err)
			}
		}
		return nil
	})
}

// Findings returns a run's validation findings in stored order.
func (s *Store) Findings(ctx context.Context, runID string) ([]validate.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row, field, rule, severity, message FROM findings WHERE run_id = ? ORDER BY pos`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []validate.Finding
	for rows.Next() {
		var f validate.Finding
		if err := rows.Scan(&f.Row, &f.Field, &f.Rule, &f.Severity, &f.Message); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
