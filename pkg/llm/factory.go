package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/config"
)

// NewClient builds the configured provider's client.
func NewClient(cfg *config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(&OpenAIConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey(),
		}, logger)
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey(), cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
