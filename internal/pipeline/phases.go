package pipeline

import (
	"context"

	"github.com/sells-group/prospector/internal/model"
)

// ProfileGenerator builds the ideal customer profile from the seed company.
type ProfileGenerator interface {
	GenerateProfile(ctx context.Context, cfg Config) (*Profile, error)
}

// EntityDiscoverer finds companies resembling the profile.
type EntityDiscoverer interface {
	DiscoverEntities(ctx context.Context, cfg Config, profile *Profile) ([]Entity, error)
}

// ContactDiscoverer finds decision makers at each entity.
type ContactDiscoverer interface {
	DiscoverContacts(ctx context.Context, cfg Config, entities []Entity) ([]Contact, error)
}

// Personalizer writes one outreach artifact per contact.
type Personalizer interface {
	Personalize(ctx context.Context, cfg Config, profile *Profile, contacts []Contact) ([]Artifact, error)
}

// Uploader writes artifacts to an external system of record.
type Uploader interface {
	Upload(ctx context.Context, pipelineID string, artifacts []Artifact) (*UploadSummary, error)
}

// Phases holds the collaborators of each phase. Uploaders is keyed by
// upload target name.
type Phases struct {
	Profile     ProfileGenerator
	Entities    EntityDiscoverer
	Contacts    ContactDiscoverer
	Personalize Personalizer
	Uploaders   map[string]Uploader
}

// checkpoints is the progress written after each phase completes.
var checkpoints = map[model.Phase]int{
	model.PhaseProfileGeneration: 10,
	model.PhaseEntityDiscovery:   30,
	model.PhaseContactDiscovery:  60,
	model.PhasePersonalization:   80,
	model.PhaseUpload:            95,
}
