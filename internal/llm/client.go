package llm

import (
	"context"
	"fmt"
)

// Usage is the token accounting of one call.
type Usage struct {
	TokensIn  int
	TokensOut int
}

// Request is one structured generation call.
type Request struct {
	// SystemInstruction is the fixed agent instruction.
	SystemInstruction string
	// Prompt is the user turn.
	Prompt string
	// Schema constrains the JSON response when the backend supports it.
	Schema      *Schema
	Tier        ModelTier
	Temperature float32
	// Grounding enables web search grounding where the backend supports it.
	Grounding bool
}

// Response is the raw JSON text returned by the backend plus usage counters.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Client is an abstraction over generation backends
type Client interface {
	// GenerateJSON performs one call and returns the model's JSON text
	GenerateJSON(ctx context.Context, req *Request) (*Response, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGenAI:
		return NewGenAIClient(ctx, config, apiKey)
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", config.Provider)
	}
}
