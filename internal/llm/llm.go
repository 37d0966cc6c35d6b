package llm

import (
	"context"
	"fmt"

	"legalmind/internal/config"
)

// Provider is a hosted chat-completion model.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateJSON asks the model for a single JSON object. Callers must still
	// tolerate malformed output.
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan Chunk, error)
	Close() error
}

// Chunk is one piece of a streamed completion. A chunk with Err set is the
// last one sent.
type Chunk struct {
	Text string
	Err  error
}

// NewClient builds the provider selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
