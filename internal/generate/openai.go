package generate

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/pkg/openai"
)

// OpenAIExecutor runs generation steps as chat completions with the role as
// the system message.
type OpenAIExecutor struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAIExecutor.
func NewOpenAI(client openai.Client, cfg config.OpenAIConfig) *OpenAIExecutor {
	return &OpenAIExecutor{client: client, model: cfg.Model}
}

func (e *OpenAIExecutor) Execute(ctx context.Context, role, prompt string) (json.RawMessage, error) {
	resp, err := e.client.Complete(ctx, openai.ChatRequest{
		Model:  e.model,
		System: role,
		User:   prompt,
	})
	if err != nil {
		return nil, &UpstreamCallError{Provider: "openai", Err: err}
	}
	zap.L().Info("token usage",
		zap.String("model", e.model),
		zap.String("label", labelFrom(ctx)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return Parse(resp.Content)
}
