package model

import (
	"encoding/json"
	"time"
)

// PipelineStatus represents the lifecycle state of a pipeline run.
type PipelineStatus string

const (
	PipelineStatusIdle      PipelineStatus = "idle"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusCompleted PipelineStatus = "completed"
	PipelineStatusFailed    PipelineStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s PipelineStatus) Terminal() bool {
	return s == PipelineStatusCompleted || s == PipelineStatusFailed
}

// Phase names a stage of the prospecting pipeline.
type Phase string

const (
	PhaseProfileGeneration Phase = "profile_generation"
	PhaseEntityDiscovery   Phase = "entity_discovery"
	PhaseContactDiscovery  Phase = "contact_discovery"
	PhasePersonalization   Phase = "personalization"
	PhaseUpload            Phase = "upload"
)

// Phases lists the pipeline phases in execution order.
var Phases = []Phase{
	PhaseProfileGeneration,
	PhaseEntityDiscovery,
	PhaseContactDiscovery,
	PhasePersonalization,
	PhaseUpload,
}

// Index returns the position of p in Phases, or -1.
func (p Phase) Index() int {
	for i, phase := range Phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// Counters summarizes the work a pipeline run has done so far.
type Counters struct {
	EntitiesProcessed  int `json:"entities_processed"`
	ContactsFound      int `json:"contacts_found"`
	ArtifactsGenerated int `json:"artifacts_generated"`
}

// PipelineRun is the persisted state machine record of a pipeline run.
type PipelineRun struct {
	ID           string          `json:"id"`
	Actor        string          `json:"actor"`
	Status       PipelineStatus  `json:"status"`
	CurrentPhase Phase           `json:"current_phase"`
	Progress     int             `json:"progress"`
	Counters     Counters        `json:"counters"`
	Error        string          `json:"error,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PipelineUpdate is a partial update written after each completed phase.
type PipelineUpdate struct {
	Progress     int
	CurrentPhase Phase
	Counters     Counters
}

// PipelineResult is the aggregate output of a completed pipeline run.
type PipelineResult struct {
	ID         string          `json:"id"`
	PipelineID string          `json:"pipeline_id"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}
