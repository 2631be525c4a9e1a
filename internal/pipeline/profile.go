package pipeline

import (
	"context"

	"github.com/sells-group/prospector/internal/research"
)

// Researcher runs the research sequence for a subject.
type Researcher interface {
	Run(ctx context.Context, subject, actor string) (*research.Outcome, error)
}

// ResearchProfiler builds the ideal customer profile by researching the seed
// company. The canonical report is the profile.
type ResearchProfiler struct {
	researcher Researcher
}

// NewResearchProfiler creates a ResearchProfiler.
func NewResearchProfiler(r Researcher) *ResearchProfiler {
	return &ResearchProfiler{researcher: r}
}

// profileActor attributes research runs started by the pipeline.
const profileActor = "pipeline"

func (p *ResearchProfiler) GenerateProfile(ctx context.Context, cfg Config) (*Profile, error) {
	out, err := p.researcher.Run(ctx, cfg.SeedURL, profileActor)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ResearchRunID: out.RunID,
		Subject:       cfg.SeedURL,
		Report:        out.Report,
	}, nil
}
