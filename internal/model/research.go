package model

import (
	"encoding/json"
	"time"
)

// StepName identifies one of the fixed research steps.
type StepName string

const (
	StepOverview           StepName = "overview"
	StepMarketIntelligence StepName = "market_intelligence"
	StepTechStack          StepName = "tech_stack"
	StepSalesGTM           StepName = "sales_gtm"
)

// Steps lists the research steps in execution order.
var Steps = []StepName{
	StepOverview,
	StepMarketIntelligence,
	StepTechStack,
	StepSalesGTM,
}

// Valid reports whether s is one of the fixed research steps.
func (s StepName) Valid() bool {
	for _, step := range Steps {
		if s == step {
			return true
		}
	}
	return false
}

// ResearchRun is one execution of the research sequence for a subject.
type ResearchRun struct {
	ID        string       `json:"id"`
	Subject   string       `json:"subject"`
	Actor     string       `json:"actor"`
	Steps     []StepResult `json:"steps,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// StepResult holds the raw output of a single research step. Immutable once
// appended to the step log.
type StepResult struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Sequence  int             `json:"sequence"`
	Step      StepName        `json:"step"`
	Output    json.RawMessage `json:"output"`
	CreatedAt time.Time       `json:"created_at"`
}
