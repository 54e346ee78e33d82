package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	einoollama "github.com/cloudwego/eino-ext/components/embedding/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/embedding/openai"

	"github.com/seelenmaschine/seele/internal/config"
)

// NewEmbedder creates an Eino Embedder for the configured provider.
// Supported providers: "openai", "ollama".
func NewEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIEmbedder(ctx, cfg)
	case "ollama":
		return newOllamaEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q (supported: openai, ollama)", cfg.Provider)
	}
}

func newOpenAIEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	if cfg.EmbeddingAPIKey == "" {
		return nil, fmt.Errorf("openai embedding: API key not configured (set EMBEDDING_API_KEY or OPENAI_API_KEY)")
	}

	ecfg := &einoopenai.EmbeddingConfig{
		APIKey: cfg.EmbeddingAPIKey,
		Model:  cfg.EmbeddingModel,
	}
	if cfg.EmbeddingAPIBase != "" {
		ecfg.BaseURL = cfg.EmbeddingAPIBase
	}
	if cfg.EmbeddingDimension > 0 {
		dims := cfg.EmbeddingDimension
		ecfg.Dimensions = &dims
	}
	return einoopenai.NewEmbedder(ctx, ecfg)
}

func newOllamaEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	baseURL := cfg.EmbeddingAPIBase
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	ecfg := &einoollama.EmbeddingConfig{
		BaseURL: baseURL,
		Model:   cfg.EmbeddingModel,
	}
	return einoollama.NewEmbedder(ctx, ecfg)
}
