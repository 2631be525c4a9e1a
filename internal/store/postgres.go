package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/db"
	"github.com/sells-group/prospector/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pipelineColumns = `id, actor, status, current_phase, progress, entities_processed, contacts_found, artifacts_generated, error, config, created_at, updated_at`
	stepColumns     = `id, run_id, sequence, step, output, created_at`
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := newPoolConfig(connString, poolCfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// newPoolConfig applies pool sizing to connString. Queries run in statement
// cache mode, so each connection prepares a query the first time it runs it,
// including the status polling query, and reuses the statement afterwards.
func newPoolConfig(connString string, poolCfg *PoolConfig) (*pgxpool.Config, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	return pgxCfg, nil
}

// Step output and result payloads are stored as JSON rather than JSONB so
// that object key order survives the round trip. Field resolution depends on
// document order.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS research_runs (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	actor      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS research_steps (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES research_runs(id),
	sequence   INTEGER NOT NULL,
	step       TEXT NOT NULL,
	output     JSON NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	config              JSON NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_results (
	id          TEXT PRIMARY KEY,
	pipeline_id TEXT NOT NULL UNIQUE REFERENCES pipeline_runs(id),
	data        JSON NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_research_steps_run_id ON research_steps(run_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Step log ---

func (s *PostgresStore) CreateResearchRun(ctx context.Context, subject, actor string) (*model.ResearchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_runs (id, subject, actor, created_at) VALUES ($1, $2, $3, $4)`,
		id, subject, actor, now,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "create research run", Err: eris.Wrap(err, "postgres: insert research run")}
	}

	return &model.ResearchRun{ID: id, Subject: subject, Actor: actor, CreatedAt: now}, nil
}

func (s *PostgresStore) AppendStep(ctx context.Context, runID string, step model.StepName, output json.RawMessage) (*model.StepResult, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var seq int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO research_steps (id, run_id, sequence, step, output, created_at)
		 SELECT $1::text, $2::text, COALESCE(MAX(sequence), 0) + 1, $3::text, $4::json, $5::timestamptz
		 FROM research_steps WHERE run_id = $2::text
		 RETURNING sequence`,
		id, runID, string(step), []byte(output), now,
	).Scan(&seq)
	if err != nil {
		return nil, &PersistenceError{Op: "append step", Err: eris.Wrapf(err, "postgres: insert step %s for run %s", step, runID)}
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

func (s *PostgresStore) ListSteps(ctx context.Context, runID string) ([]model.StepResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM research_steps WHERE run_id = $1 ORDER BY sequence`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list steps %s", runID)
	}
	defer rows.Close()

	var steps []model.StepResult
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan step")
		}
		steps = append(steps, *st)
	}
	return steps, eris.Wrap(rows.Err(), "postgres: iterate steps")
}

func (s *PostgresStore) GetResearchRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var r model.ResearchRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject, actor, created_at FROM research_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Subject, &r.Actor, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "research run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get research run %s", runID)
	}

	r.Steps, err = s.ListSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Pipeline state machine ---

func (s *PostgresStore) CreatePipelineRun(ctx context.Context, actor string, cfg json.RawMessage) (*model.PipelineRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	cfgJSON := emptyJSON(cfg, "{}")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, actor, status, current_phase, progress, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`,
		id, actor, string(model.PipelineStatusRunning), string(model.PhaseProfileGeneration), cfgJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert pipeline run")
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

func (s *PostgresStore) UpdatePipelineProgress(ctx context.Context, id string, u model.PipelineUpdate) error {
	if u.Progress < 0 || u.Progress > 100 {
		return eris.Errorf("postgres: progress %d out of range", u.Progress)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs
		 SET progress = GREATEST(progress, $1), current_phase = $2,
		     entities_processed = $3, contacts_found = $4, artifacts_generated = $5, updated_at = $6
		 WHERE id = $7 AND status = 'running'`,
		u.Progress, string(u.CurrentPhase),
		u.Counters.EntitiesProcessed, u.Counters.ContactsFound, u.Counters.ArtifactsGenerated,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update pipeline progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.guardMiss(ctx, id)
	}
	return nil
}

func (s *PostgresStore) CompletePipelineRun(ctx context.Context, id string, data json.RawMessage) (*model.PipelineResult, error) {
	now := time.Now().UTC()
	res := &model.PipelineResult{
		ID:         uuid.New().String(),
		PipelineID: id,
		Data:       emptyJSON(data, "null"),
		CreatedAt:  now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin complete")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, progress = 100, updated_at = $2 WHERE id = $3 AND status = 'running'`,
		string(model.PipelineStatusCompleted), now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: complete pipeline run %s", id)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return nil, s.guardMiss(ctx, id)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO pipeline_results (id, pipeline_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		res.ID, id, []byte(res.Data), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert result %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit complete")
	}
	return res, nil
}

func (s *PostgresStore) FailPipelineRun(ctx context.Context, id, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4 AND status = 'running'`,
		string(model.PipelineStatusFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail pipeline run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.guardMiss(ctx, id)
	}
	return nil
}

// guardMiss explains why a guarded update matched no row.
func (s *PostgresStore) guardMiss(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM pipeline_runs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "pipeline run %s", id)
		}
		return eris.Wrapf(err, "postgres: get pipeline status %s", id)
	}
	return eris.Wrapf(ErrTerminal, "pipeline run %s is %s", id, status)
}

func (s *PostgresStore) GetPipelineRun(ctx context.Context, id string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pipelineColumns+` FROM pipeline_runs WHERE id = $1`, id)
	r, err := scanPipelineRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "pipeline run %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get pipeline run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListPipelineRuns(ctx context.Context, filter PipelineFilter) ([]model.PipelineRun, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipeline_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Actor != "" {
		query += fmt.Sprintf(` AND actor = $%d`, argIdx)
		args = append(args, filter.Actor)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pipeline runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanPipelineRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pipeline run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate pipeline runs")
}

func (s *PostgresStore) GetResult(ctx context.Context, pipelineID string) (*model.PipelineResult, error) {
	var res model.PipelineResult
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, pipeline_id, data, created_at FROM pipeline_results WHERE pipeline_id = $1`,
		pipelineID,
	).Scan(&res.ID, &res.PipelineID, &data, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get result %s", pipelineID)
	}
	res.Data = data
	return &res, nil
}

func scanStep(row scannable) (*model.StepResult, error) {
	var st model.StepResult
	var output []byte
	if err := row.Scan(&st.ID, &st.RunID, &st.Sequence, &st.Step, &output, &st.CreatedAt); err != nil {
		return nil, err
	}
	st.Output = output
	return &st, nil
}

func scanPipelineRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var cfg []byte
	err := row.Scan(
		&r.ID, &r.Actor, &r.Status, &r.CurrentPhase, &r.Progress,
		&r.Counters.EntitiesProcessed, &r.Counters.ContactsFound, &r.Counters.ArtifactsGenerated,
		&r.Error, &cfg, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Config = cfg
	return &r, nil
}
