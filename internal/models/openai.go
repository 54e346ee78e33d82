package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/seelenmaschine/seele/internal/config"
)

// NewOpenAI creates a ChatModel against the OpenAI-compatible endpoint.
func NewOpenAI(ctx context.Context, cfg *config.Config, modelName string) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   modelName,
		Timeout: 60 * time.Second,
	}
	if cfg.OpenAIAPIBase != "" {
		modelConfig.BaseURL = cfg.OpenAIAPIBase
	}
	return einoopenai.NewChatModel(ctx, modelConfig)
}
