// Package llm provides the generation backend clients used by the agents.
package llm

import "fmt"

// ModelTier says how much model an agent call needs.
type ModelTier string

const (
	// TierLite checks and scores: QA.
	TierLite ModelTier = "lite"
	// TierStandard writes structured deliverables: knowledge base, deck, plan.
	TierStandard ModelTier = "standard"
	// TierAdvanced runs grounded research synthesis.
	TierAdvanced ModelTier = "advanced"
)

// Provider names the SDK used to reach Gemini.
type Provider string

const (
	// ProviderGemini uses github.com/google/generative-ai-go.
	ProviderGemini Provider = "gemini"
	// ProviderGenAI uses google.golang.org/genai, which supports search grounding.
	ProviderGenAI Provider = "genai"
)

// defaultModels is the stock tier assignment. Every tier must be present.
var defaultModels = map[ModelTier]string{
	TierLite:     "gemini-2.5-flash-lite",
	TierStandard: "gemini-2.5-flash",
	TierAdvanced: "gemini-2.5-pro",
}

// Config selects a backend and the model each tier runs on.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the stock Gemini setup.
func DefaultConfig() *Config {
	models := make(map[ModelTier]string, len(defaultModels))
	for tier, model := range defaultModels {
		models[tier] = model
	}
	return &Config{Provider: ProviderGemini, Models: models}
}

// NewConfig builds a Config from settings. An empty provider means Gemini;
// a non-empty model pins every tier to it.
func NewConfig(provider, model string) (*Config, error) {
	cfg := DefaultConfig()
	switch Provider(provider) {
	case "", ProviderGemini:
	case ProviderGenAI:
		cfg.Provider = ProviderGenAI
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", provider)
	}
	if model != "" {
		for tier := range cfg.Models {
			cfg.Models[tier] = model
		}
	}
	return cfg, nil
}

// GetModel returns the model for a tier. A tier missing from Models falls back
// to the standard model.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	return c.Models[TierStandard]
}
