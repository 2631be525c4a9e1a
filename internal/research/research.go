// Package research runs the fixed sequence of research steps for a subject
// and reconciles their outputs into a canonical report.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/canonical"
	"github.com/sells-group/prospector/internal/generate"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/schema"
	"github.com/sells-group/prospector/internal/store"
)

// Outcome is the result of a successful research run.
type Outcome struct {
	RunID  string            `json:"run_id"`
	Merged json.RawMessage   `json:"merged"`
	Report *canonical.Report `json:"report"`
	// PersistFailures counts step log writes that failed during the run.
	PersistFailures int `json:"persist_failures"`
}

// StepError reports the step that aborted a run.
type StepError struct {
	Step model.StepName
	Err  error
}

func (e *StepError) Error() string {
	return "research: step " + string(e.Step) + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IncompleteRunError reports a run whose step log does not hold every
// research step in order, so no canonical report can be built from it.
type IncompleteRunError struct {
	RunID string
	Have  []model.StepName
}

func (e *IncompleteRunError) Error() string {
	return fmt.Sprintf("research: run %s is incomplete: logged %d/%d steps", e.RunID, len(e.Have), len(steps))
}

// Orchestrator executes research runs.
type Orchestrator struct {
	log    store.StepLog
	exec   generate.Executor
	schema *schema.Schema
}

// New creates an Orchestrator.
func New(log store.StepLog, exec generate.Executor, s *schema.Schema) *Orchestrator {
	return &Orchestrator{log: log, exec: exec, schema: s}
}

// Run executes every research step for subject in order. Each step sees the
// merged output of all prior steps. Step log writes are best effort; a
// generation or parse failure aborts the run with a *StepError and no report.
func (o *Orchestrator) Run(ctx context.Context, subject, actor string) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{}
	log := zap.L().With(zap.String("subject", subject))

	run, err := o.log.CreateResearchRun(ctx, subject, actor)
	if err != nil {
		out.RunID = uuid.NewString()
		out.PersistFailures++
		log.Warn("research: create run failed, continuing unpersisted",
			zap.String("run_id", out.RunID),
			zap.Error(err),
		)
	} else {
		out.RunID = run.ID
	}
	log = log.With(zap.String("run_id", out.RunID))

	results := make([]model.StepResult, 0, len(steps))
	for _, s := range steps {
		prompt := fmt.Sprintf(s.template, subject, Merge(results))

		stepStart := time.Now()
		output, err := o.exec.Execute(generate.WithLabel(ctx, string(s.name)), s.role, prompt)
		if err != nil {
			log.Error("research: step failed",
				zap.String("step", string(s.name)),
				zap.Error(err),
			)
			return nil, &StepError{Step: s.name, Err: err}
		}

		results = append(results, model.StepResult{RunID: out.RunID, Step: s.name, Output: output})

		if _, err := o.log.AppendStep(ctx, out.RunID, s.name, output); err != nil {
			out.PersistFailures++
			log.Warn("research: step not persisted",
				zap.String("step", string(s.name)),
				zap.Error(err),
			)
		}

		log.Debug("research: step complete",
			zap.String("step", string(s.name)),
			zap.Duration("duration", time.Since(stepStart)),
		)
	}

	out.Merged = Merge(results)
	out.Report = canonical.Map(o.schema, out.Merged)

	log.Info("research: run complete",
		zap.Float64("coverage", out.Report.Coverage()),
		zap.Int("persist_failures", out.PersistFailures),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// Rebuild recomputes the canonical report of a past run from its step log.
// Runs that did not log every step yield an *IncompleteRunError.
func (o *Orchestrator) Rebuild(ctx context.Context, runID string) (*Outcome, error) {
	run, err := o.log.GetResearchRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "research: get run %s", runID)
	}
	if !complete(run.Steps) {
		have := make([]model.StepName, len(run.Steps))
		for i, r := range run.Steps {
			have[i] = r.Step
		}
		return nil, &IncompleteRunError{RunID: run.ID, Have: have}
	}
	merged := Merge(run.Steps)
	return &Outcome{
		RunID:  run.ID,
		Merged: merged,
		Report: canonical.Map(o.schema, merged),
	}, nil
}

func complete(results []model.StepResult) bool {
	if len(results) != len(steps) {
		return false
	}
	for i, s := range steps {
		if results[i].Step != s.name {
			return false
		}
	}
	return true
}
