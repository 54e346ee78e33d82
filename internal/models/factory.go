package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/seelenmaschine/seele/internal/config"
)

// CreateChatModel creates a model.ToolCallingChatModel for the configured
// provider. The model name is passed explicitly because the chat and tool
// models may differ while sharing provider credentials.
func CreateChatModel(ctx context.Context, cfg *config.Config, modelName string) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAI(ctx, cfg, modelName)
	case "ollama":
		return NewOllama(ctx, cfg, modelName)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
