// Package pipeline runs the five-phase prospecting pipeline as a detached
// background task tracked through the persisted pipeline state machine.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

var validate = validator.New()

// InvalidConfigError reports a pipeline configuration that failed validation.
type InvalidConfigError struct {
	Err error
}

func (e *InvalidConfigError) Error() string {
	return "pipeline: invalid config: " + e.Err.Error()
}

func (e *InvalidConfigError) Unwrap() error {
	return e.Err
}

// Runner starts pipeline runs and answers status queries.
type Runner struct {
	store    store.PipelineStore
	phases   Phases
	defaults config.PipelineConfig

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewRunner creates a Runner. defaults fill unset fields of each run's Config.
func NewRunner(st store.PipelineStore, phases Phases, defaults config.PipelineConfig) *Runner {
	return &Runner{
		store:    st,
		phases:   phases,
		defaults: defaults,
		tasks:    make(map[string]*Task),
	}
}

// Start validates cfg, records a new running pipeline run and executes it in
// the background. It returns as soon as the run is recorded. The task is
// detached from ctx: cancelling ctx does not stop the run.
func (r *Runner) Start(ctx context.Context, actor string, cfg Config) (*model.PipelineRun, *Task, error) {
	cfg = r.withDefaults(cfg)
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, &InvalidConfigError{Err: err}
	}
	if err := r.checkPhases(cfg); err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: marshal config")
	}

	run, err := r.store.CreatePipelineRun(ctx, actor, raw)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}

	task := newTask(run.ID)
	r.mu.Lock()
	r.tasks[run.ID] = task
	r.mu.Unlock()

	r.wg.Add(1)
	go func(ctx context.Context) {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.tasks, run.ID)
			r.mu.Unlock()
		}()
		task.finish(r.run(ctx, run.ID, cfg))
	}(context.WithoutCancel(ctx))

	zap.L().Info("pipeline: started",
		zap.String("pipeline_id", run.ID),
		zap.String("actor", actor),
		zap.String("seed_url", cfg.SeedURL),
		zap.String("upload_target", cfg.UploadTarget),
	)
	return run, task, nil
}

// Task returns the in-flight task for id, if this process is running it.
func (r *Runner) Task(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Status returns the current state of a pipeline run. Unknown ids yield
// store.ErrNotFound.
func (r *Runner) Status(ctx context.Context, id string) (*model.PipelineRun, error) {
	return r.store.GetPipelineRun(ctx, id)
}

// Results returns the result of a completed run, or nil while the run has
// not completed. Unknown ids yield store.ErrNotFound.
func (r *Runner) Results(ctx context.Context, id string) (*model.PipelineResult, error) {
	if _, err := r.store.GetPipelineRun(ctx, id); err != nil {
		return nil, err
	}
	return r.store.GetResult(ctx, id)
}

// List returns recent pipeline runs, newest first.
func (r *Runner) List(ctx context.Context, filter store.PipelineFilter) ([]model.PipelineRun, error) {
	return r.store.ListPipelineRuns(ctx, filter)
}

// Drain waits for every in-flight task to finish or for ctx to be done.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "pipeline: drain")
	}
}

func (r *Runner) withDefaults(cfg Config) Config {
	cfg.SeedURL = strings.TrimSpace(cfg.SeedURL)
	if cfg.MaxEntities == 0 {
		cfg.MaxEntities = r.defaults.MaxEntities
	}
	if cfg.MaxContactsPerEntity == 0 {
		cfg.MaxContactsPerEntity = r.defaults.MaxContactsPerEntity
	}
	if cfg.UploadTarget == "" {
		cfg.UploadTarget = r.defaults.UploadTarget
	}
	if len(cfg.TargetTitles) == 0 {
		cfg.TargetTitles = DefaultTargetTitles
	}
	return cfg
}

func (r *Runner) checkPhases(cfg Config) error {
	var missing []string
	if r.phases.Profile == nil {
		missing = append(missing, "profile generator")
	}
	if r.phases.Entities == nil {
		missing = append(missing, "entity discoverer")
	}
	if r.phases.Contacts == nil {
		missing = append(missing, "contact discoverer")
	}
	if r.phases.Personalize == nil {
		missing = append(missing, "personalizer")
	}
	if r.phases.Uploaders[cfg.UploadTarget] == nil {
		missing = append(missing, cfg.UploadTarget+" uploader")
	}
	if len(missing) > 0 {
		return &config.ConfigurationError{Mode: config.ModePipeline, Missing: missing}
	}
	return nil
}

// run executes the phases and records the terminal status. It returns the
// error that failed the run.
func (r *Runner) run(ctx context.Context, id string, cfg Config) error {
	log := zap.L().With(zap.String("pipeline_id", id))
	start := time.Now()

	err := r.execute(ctx, id, cfg, log)
	if err == nil {
		log.Info("pipeline: completed", zap.Duration("duration", time.Since(start)))
		return nil
	}

	log.Error("pipeline: failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	if failErr := r.store.FailPipelineRun(ctx, id, err.Error()); failErr != nil {
		log.Error("pipeline: record failure", zap.Error(failErr))
	}
	return err
}

func (r *Runner) execute(ctx context.Context, id string, cfg Config, log *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline: panic", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = eris.Errorf("pipeline: panic: %v", p)
		}
	}()

	agg := &Aggregate{}

	// advance records the checkpoint of a finished phase and names the next.
	advance := func(done model.Phase) error {
		next := done
		if i := done.Index(); i+1 < len(model.Phases) {
			next = model.Phases[i+1]
		}
		update := model.PipelineUpdate{
			Progress:     checkpoints[done],
			CurrentPhase: next,
			Counters:     agg.Counters,
		}
		if err := r.store.UpdatePipelineProgress(ctx, id, update); err != nil {
			return eris.Wrapf(err, "pipeline: record %s progress", done)
		}
		return nil
	}

	// phase runs fn as the named phase and advances on success.
	phase := func(name model.Phase, fn func() error) error {
		phaseStart := time.Now()
		if err := fn(); err != nil {
			return &PhaseError{Phase: name, Err: err}
		}
		log.Info("pipeline: phase complete",
			zap.String("phase", string(name)),
			zap.Duration("duration", time.Since(phaseStart)),
			zap.Int("entities", agg.Counters.EntitiesProcessed),
			zap.Int("contacts", agg.Counters.ContactsFound),
			zap.Int("artifacts", agg.Counters.ArtifactsGenerated),
		)
		return advance(name)
	}

	steps := []struct {
		name model.Phase
		fn   func() error
	}{
		{model.PhaseProfileGeneration, func() (err error) {
			agg.Profile, err = r.phases.Profile.GenerateProfile(ctx, cfg)
			return err
		}},
		{model.PhaseEntityDiscovery, func() (err error) {
			agg.Entities, err = r.phases.Entities.DiscoverEntities(ctx, cfg, agg.Profile)
			agg.Counters.EntitiesProcessed = len(agg.Entities)
			return err
		}},
		{model.PhaseContactDiscovery, func() (err error) {
			agg.Contacts, err = r.phases.Contacts.DiscoverContacts(ctx, cfg, agg.Entities)
			agg.Counters.ContactsFound = len(agg.Contacts)
			return err
		}},
		{model.PhasePersonalization, func() (err error) {
			agg.Artifacts, err = r.phases.Personalize.Personalize(ctx, cfg, agg.Profile, agg.Contacts)
			agg.Counters.ArtifactsGenerated = len(agg.Artifacts)
			return err
		}},
		{model.PhaseUpload, func() (err error) {
			agg.Upload, err = r.phases.Uploaders[cfg.UploadTarget].Upload(ctx, id, agg.Artifacts)
			return err
		}},
	}

	for _, s := range steps {
		if err := phase(s.name, s.fn); err != nil {
			return err
		}
	}

	data, err := json.Marshal(agg)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal result")
	}
	if _, err := r.store.CompletePipelineRun(ctx, id, data); err != nil {
		return eris.Wrap(err, "pipeline: complete run")
	}
	return nil
}

// PhaseError reports the phase that failed a run.
type PhaseError struct {
	Phase model.Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
