package pipeline

import (
	"encoding/json"

	"github.com/sells-group/prospector/internal/canonical"
	"github.com/sells-group/prospector/internal/model"
)

// Config is the caller-supplied configuration of one pipeline run. Zero
// values are filled from the process configuration when the run starts.
type Config struct {
	SeedURL              string   `json:"seed_url" yaml:"seed_url" validate:"required,url"`
	TargetTitles         []string `json:"target_titles,omitempty" yaml:"target_titles" validate:"omitempty,max=20,dive,required"`
	MaxEntities          int      `json:"max_entities,omitempty" yaml:"max_entities" validate:"omitempty,min=1,max=100"`
	MaxContactsPerEntity int      `json:"max_contacts_per_entity,omitempty" yaml:"max_contacts_per_entity" validate:"omitempty,min=1,max=20"`
	UploadTarget         string   `json:"upload_target,omitempty" yaml:"upload_target" validate:"omitempty,oneof=notion salesforce"`
	Tone                 string   `json:"tone,omitempty" yaml:"tone" validate:"max=200"`
}

// DefaultTargetTitles are used when a run names no target titles.
var DefaultTargetTitles = []string{"CEO", "CTO", "VP Engineering", "VP Sales", "Head of Operations"}

// Profile is the ideal customer profile produced by the first phase.
type Profile struct {
	ResearchRunID string            `json:"research_run_id"`
	Subject       string            `json:"subject"`
	Report        *canonical.Report `json:"report"`
}

// Brief returns the profile report as JSON for embedding in prompts.
func (p *Profile) Brief() string {
	if p == nil || p.Report == nil {
		return "{}"
	}
	b, err := json.Marshal(p.Report)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Entity is a company discovered as a lookalike of the seed company.
type Entity struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Reason string `json:"reason,omitempty"`
}

// Contact is a decision maker at a discovered entity.
type Contact struct {
	Entity   Entity `json:"entity"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Artifact is a personalized outreach message for one contact.
type Artifact struct {
	Contact Contact `json:"contact"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
}

// UploadSummary reports what the upload phase wrote.
type UploadSummary struct {
	Target  string   `json:"target"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	IDs     []string `json:"ids"`
}

// Aggregate is the result data stored when a run completes.
type Aggregate struct {
	Profile   *Profile       `json:"profile"`
	Entities  []Entity       `json:"entities"`
	Contacts  []Contact      `json:"contacts"`
	Artifacts []Artifact     `json:"artifacts"`
	Upload    *UploadSummary `json:"upload"`
	Counters  model.Counters `json:"counters"`
}
