package generate

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/pkg/anthropic"
)

// AnthropicExecutor runs generation steps against the Messages API. The role
// is sent as a cached system block and the prompt as the user turn.
type AnthropicExecutor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an AnthropicExecutor.
func NewAnthropic(client anthropic.Client, cfg config.AnthropicConfig) *AnthropicExecutor {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicExecutor{client: client, model: cfg.Model, maxTokens: maxTokens}
}

func (e *AnthropicExecutor) Execute(ctx context.Context, role, prompt string) (json.RawMessage, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      role,
		CacheSystem: true,
		Prompt:      prompt,
	})
	if err != nil {
		return nil, &UpstreamCallError{Provider: "anthropic", Err: err}
	}
	resp.Usage.LogCost(e.model, labelFrom(ctx))

	if resp.Truncated() {
		zap.L().Warn("generate: response truncated at max tokens",
			zap.String("label", labelFrom(ctx)),
			zap.Int64("max_tokens", e.maxTokens),
		)
	}
	return Parse(resp.Text)
}
