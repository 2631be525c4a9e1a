package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/model"
)

var (
	// ErrNotFound is returned for unknown research or pipeline run ids.
	ErrNotFound = eris.New("store: not found")

	// ErrTerminal is returned when a guarded update targets a pipeline run
	// that is no longer running.
	ErrTerminal = eris.New("store: pipeline run is terminal")
)

// PersistenceError reports a failed write to the step log.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PipelineFilter specifies criteria for listing pipeline runs.
type PipelineFilter struct {
	Status model.PipelineStatus `json:"status,omitempty"`
	Actor  string               `json:"actor,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// StepLog is the append-only log of research step outputs. Steps can only be
// appended and listed; there is no way to edit or reorder them.
type StepLog interface {
	CreateResearchRun(ctx context.Context, subject, actor string) (*model.ResearchRun, error)
	AppendStep(ctx context.Context, runID string, step model.StepName, output json.RawMessage) (*model.StepResult, error)
	ListSteps(ctx context.Context, runID string) ([]model.StepResult, error)
	GetResearchRun(ctx context.Context, runID string) (*model.ResearchRun, error)
}

// PipelineStore persists the pipeline state machine and its final result.
// Every mutation is guarded by status = running, so a run transitions to a
// terminal status at most once and never changes afterwards.
type PipelineStore interface {
	CreatePipelineRun(ctx context.Context, actor string, cfg json.RawMessage) (*model.PipelineRun, error)
	UpdatePipelineProgress(ctx context.Context, id string, update model.PipelineUpdate) error
	// CompletePipelineRun writes the result row and marks the run completed
	// in a single transaction.
	CompletePipelineRun(ctx context.Context, id string, data json.RawMessage) (*model.PipelineResult, error)
	FailPipelineRun(ctx context.Context, id, msg string) error
	GetPipelineRun(ctx context.Context, id string) (*model.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, filter PipelineFilter) ([]model.PipelineRun, error)
	// GetResult returns nil, nil when no result exists for the run.
	GetResult(ctx context.Context, pipelineID string) (*model.PipelineResult, error)
}

// Store combines both persistence concerns with lifecycle management.
type Store interface {
	StepLog
	PipelineStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func emptyJSON(raw json.RawMessage, fallback string) []byte {
	if len(raw) == 0 {
		return []byte(fallback)
	}
	return raw
}

type scannable interface {
	Scan(dest ...any) error
}
