package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The handle is limited to one connection so that the pipeline task and
// concurrent pollers serialize instead of hitting SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS research_runs (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	actor      TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS research_steps (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES research_runs(id),
	sequence   INTEGER NOT NULL,
	step       TEXT NOT NULL,
	output     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (run_id, sequence)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                  TEXT PRIMARY KEY,
	actor               TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'idle',
	current_phase       TEXT NOT NULL DEFAULT '',
	progress            INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	entities_processed  INTEGER NOT NULL DEFAULT 0,
	contacts_found      INTEGER NOT NULL DEFAULT 0,
	artifacts_generated INTEGER NOT NULL DEFAULT 0,
	error               TEXT NOT NULL DEFAULT '',
	config              TEXT NOT NULL DEFAULT '{}',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_results (
	id          TEXT PRIMARY KEY,
	pipeline_id TEXT NOT NULL UNIQUE REFERENCES pipeline_runs(id),
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_research_steps_run_id ON research_steps(run_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Step log ---

func (s *SQLiteStore) CreateResearchRun(ctx context.Context, subject, actor string) (*model.ResearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_runs (id, subject, actor, created_at) VALUES (?, ?, ?, ?)`,
		id, subject, actor, now,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "create research run", Err: eris.Wrap(err, "sqlite: insert research run")}
	}

	return &model.ResearchRun{ID: id, Subject: subject, Actor: actor, CreatedAt: now}, nil
}

func (s *SQLiteStore) AppendStep(ctx context.Context, runID string, step model.StepName, output json.RawMessage) (*model.StepResult, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var seq int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO research_steps (id, run_id, sequence, step, output, created_at)
		 SELECT ?, ?, COALESCE(MAX(sequence), 0) + 1, ?, ?, ?
		 FROM research_steps WHERE run_id = ?
		 RETURNING sequence`,
		id, runID, string(step), string(output), now, runID,
	).Scan(&seq)
	if err != nil {
		return nil, &PersistenceError{Op: "append step", Err: eris.Wrapf(err, "sqlite: insert step %s for run %s", step, runID)}
	}

	return &model.StepResult{
		ID:        id,
		RunID:     runID,
		Sequence:  seq,
		Step:      step,
		Output:    output,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]model.StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM research_steps WHERE run_id = ? ORDER BY sequence`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list steps %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var steps []model.StepResult
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step")
		}
		steps = append(steps, *st)
	}
	return steps, eris.Wrap(rows.Err(), "sqlite: iterate steps")
}

func (s *SQLiteStore) GetResearchRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var r model.ResearchRun
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject, actor, created_at FROM research_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Subject, &r.Actor, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "research run %s", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get research run %s", runID)
	}

	r.Steps, err = s.ListSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Pipeline state machine ---

func (s *SQLiteStore) CreatePipelineRun(ctx context.Context, actor string, cfg json.RawMessage) (*model.PipelineRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	cfgJSON := emptyJSON(cfg, "{}")

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, actor, status, current_phase, progress, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		id, actor, string(model.PipelineStatusRunning), string(model.PhaseProfileGeneration), string(cfgJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pipeline run")
	}

	return &model.PipelineRun{
		ID:           id,
		Actor:        actor,
		Status:       model.PipelineStatusRunning,
		CurrentPhase: model.PhaseProfileGeneration,
		Config:       cfgJSON,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *SQLiteStore) UpdatePipelineProgress(ctx context.Context, id string, u model.PipelineUpdate) error {
	if u.Progress < 0 || u.Progress > 100 {
		return eris.Errorf("sqlite: progress %d out of range", u.Progress)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs
		 SET progress = MAX(progress, ?), current_phase = ?,
		     entities_processed = ?, contacts_found = ?, artifacts_generated = ?, updated_at = ?
		 WHERE id = ? AND status = 'running'`,
		u.Progress, string(u.CurrentPhase),
		u.Counters.EntitiesProcessed, u.Counters.ContactsFound, u.Counters.ArtifactsGenerated,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update pipeline progress %s", id)
	}
	return s.checkGuarded(ctx, res, id)
}

func (s *SQLiteStore) CompletePipelineRun(ctx context.Context, id string, data json.RawMessage) (*model.PipelineResult, error) {
	now := time.Now().UTC()
	out := &model.PipelineResult{
		ID:         uuid.New().String(),
		PipelineID: id,
		Data:       emptyJSON(data, "null"),
		CreatedAt:  now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin complete")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, progress = 100, updated_at = ? WHERE id = ? AND status = 'running'`,
		string(model.PipelineStatusCompleted), now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: complete pipeline run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Release the single connection before looking up why.
		_ = tx.Rollback()
		return nil, s.guardMiss(ctx, id)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pipeline_results (id, pipeline_id, data, created_at) VALUES (?, ?, ?, ?)`,
		out.ID, id, string(out.Data), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert result %s", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit complete")
	}
	return out, nil
}

func (s *SQLiteStore) FailPipelineRun(ctx context.Context, id, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = 'running'`,
		string(model.PipelineStatusFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail pipeline run %s", id)
	}
	return s.checkGuarded(ctx, res, id)
}

func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return s.guardMiss(ctx, id)
	}
	return nil
}

func (s *SQLiteStore) guardMiss(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM pipeline_runs WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "pipeline run %s", id)
		}
		return eris.Wrapf(err, "sqlite: get pipeline status %s", id)
	}
	return eris.Wrapf(ErrTerminal, "pipeline run %s is %s", id, status)
}

func (s *SQLiteStore) GetPipelineRun(ctx context.Context, id string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM pipeline_runs WHERE id = ?`, id)
	r, err := scanPipelineRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "pipeline run %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get pipeline run %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListPipelineRuns(ctx context.Context, filter PipelineFilter) ([]model.PipelineRun, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Actor != "" {
		query += ` AND actor = ?`
		args = append(args, filter.Actor)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipeline runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanPipelineRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate pipeline runs")
}

func (s *SQLiteStore) GetResult(ctx context.Context, pipelineID string) (*model.PipelineResult, error) {
	var res model.PipelineResult
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline_id, data, created_at FROM pipeline_results WHERE pipeline_id = ?`,
		pipelineID,
	).Scan(&res.ID, &res.PipelineID, &data, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get result %s", pipelineID)
	}
	res.Data = json.RawMessage(data)
	return &res, nil
}
