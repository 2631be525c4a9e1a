// Package generate turns a role and a prompt into a structured value by
// calling an external reasoning service. Calls are never retried here.
package generate

import (
	"context"
	"encoding/json"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/pkg/anthropic"
	"github.com/sells-group/prospector/pkg/openai"
)

// Executor runs one generation step.
type Executor interface {
	// Execute sends role and prompt to the reasoning service and returns the
	// response parsed as compact JSON. Call failures are *UpstreamCallError,
	// unparseable responses *ParseError.
	Execute(ctx context.Context, role, prompt string) (json.RawMessage, error)
}

// UpstreamCallError reports a transport or authorization failure of an
// external call.
type UpstreamCallError struct {
	Provider string
	Err      error
}

func (e *UpstreamCallError) Error() string {
	return e.Provider + ": upstream call failed: " + e.Err.Error()
}

func (e *UpstreamCallError) Unwrap() error {
	return e.Err
}

// ParseError reports a response that could not be read as structured data.
// Raw holds the full response text.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "generate: response is not structured data: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type labelKey struct{}

// WithLabel tags ctx with a label used for cost attribution logging.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

func labelFrom(ctx context.Context) string {
	if v, ok := ctx.Value(labelKey{}).(string); ok {
		return v
	}
	return "unlabeled"
}

// New builds the Executor selected by generation.provider.
func New(cfg *config.Config) (Executor, error) {
	switch cfg.Generation.Provider {
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, &config.ConfigurationError{Mode: "generation", Missing: []string{"openai.key"}}
		}
		client := openai.NewClient(openai.Config{APIKey: cfg.OpenAI.Key, BaseURL: cfg.OpenAI.BaseURL})
		return NewOpenAI(client, cfg.OpenAI), nil
	default:
		if cfg.Anthropic.Key == "" {
			return nil, &config.ConfigurationError{Mode: "generation", Missing: []string{"anthropic.key"}}
		}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic), nil
	}
}
