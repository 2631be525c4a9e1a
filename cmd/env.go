package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/generate"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/research"
	"github.com/sells-group/prospector/internal/schema"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/notion"
	"github.com/sells-group/prospector/pkg/perplexity"
	"github.com/sells-group/prospector/pkg/salesforce"
)

const defaultSQLitePath = "prospector.db"

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initResearch builds the research orchestrator on the configured generation
// provider and report schema.
func initResearch(st store.StepLog) (*research.Orchestrator, error) {
	exec, err := generate.New(cfg)
	if err != nil {
		return nil, err
	}
	sch, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	return research.New(st, exec, sch), nil
}

// initRunner wires every pipeline phase. Uploaders are registered for each
// target whose credentials are configured.
func initRunner(st store.PipelineStore, orch *research.Orchestrator) (*pipeline.Runner, error) {
	exec, err := generate.New(cfg)
	if err != nil {
		return nil, err
	}

	pplx := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
		perplexity.WithSearchRecency(cfg.Perplexity.SearchRecency),
	)

	uploaders := make(map[string]pipeline.Uploader)
	if cfg.Notion.Token != "" && cfg.Notion.ContactDB != "" {
		nc := notion.NewClient(cfg.Notion.Token, cfg.Notion.RateLimit)
		uploaders[pipeline.TargetNotion] = pipeline.NewNotionUploader(nc, cfg.Notion.ContactDB)
	}
	if cfg.Salesforce.ClientID != "" {
		sf, err := salesforce.Connect(salesforce.Creds{
			LoginURL: cfg.Salesforce.LoginURL,
			Username: cfg.Salesforce.Username,
			ClientID: cfg.Salesforce.ClientID,
			KeyPath:  cfg.Salesforce.KeyPath,
		}, cfg.Salesforce.RateLimit)
		if err != nil {
			return nil, err
		}
		uploaders[pipeline.TargetSalesforce] = pipeline.NewSalesforceUploader(sf)
	}

	targets := make([]string, 0, len(uploaders))
	for t := range uploaders {
		targets = append(targets, t)
	}
	zap.L().Debug("pipeline: uploaders registered", zap.Strings("targets", targets))

	return pipeline.NewRunner(st, pipeline.Phases{
		Profile:     pipeline.NewResearchProfiler(orch),
		Entities:    pipeline.NewPerplexityDiscoverer(pplx),
		Contacts:    pipeline.NewPerplexityContacts(pplx),
		Personalize: pipeline.NewGenerationPersonalizer(exec),
		Uploaders:   uploaders,
	}, cfg.Pipeline), nil
}

// queryRunner answers status queries only; it has no phases to run.
func queryRunner(st store.PipelineStore) *pipeline.Runner {
	return pipeline.NewRunner(st, pipeline.Phases{}, cfg.Pipeline)
}
