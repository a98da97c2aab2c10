package embedder

import (
	"context"
	"fmt"

	"hsg/internal/hsg/config"
)

// New builds the active Embedder backend selected by cfg.EmbeddingProvider.
func New(ctx context.Context, cfg config.Config) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderSynthetic, "":
		return NewSynthetic(cfg.VecDim), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, "text-embedding-3-small", cfg.VecDim), nil
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaBaseURL, "nomic-embed-text", cfg.VecDim), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, "text-embedding-004", cfg.VecDim)
	case config.ProviderAWS:
		return NewBedrock(ctx, cfg.AWSRegion, cfg.AWSProfile, "amazon.titan-embed-text-v2:0", cfg.VecDim)
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", cfg.EmbeddingProvider)
	}
}

// NewChat builds an optional ChatCapable backend for C12's richer summary
// mode. It returns nil, false when no Anthropic key is configured.
func NewChat(cfg config.Config) (ChatCapable, bool) {
	if cfg.AnthropicAPIKey == "" {
		return nil, false
	}
	return NewAnthropicChat(cfg.AnthropicAPIKey, ""), true
}
