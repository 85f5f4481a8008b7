// Package oracle provides LLM-backed assessment and review for coding tasks.
// Providers sit behind a small completion interface so the workflow can run
// against Anthropic, OpenAI, Gemini, Ollama or a deterministic mock.
package oracle

import (
	"context"
	"fmt"

	"ctoengine/pkg/config"
)

// Request is a single-turn completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the provider's answer plus rough token accounting.
type Response struct {
	Content    string
	TokensUsed int
}

// Client is the minimal completion interface the assessor and reviewer need.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Model() string
}

// NewClient builds a provider client from config. API keys come from the
// secrets layer (encrypted file or environment).
func NewClient(cfg config.OracleConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		apiKey, err := config.GetSecret("ANTHROPIC_API_KEY")
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		return NewAnthropicClient(apiKey, cfg.Model), nil

	case config.ProviderOpenAI:
		apiKey, err := config.GetSecret("OPENAI_API_KEY")
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		return NewOpenAIClient(apiKey, cfg.Model), nil

	case config.ProviderGoogle:
		apiKey, err := config.GetSecret("GEMINI_API_KEY")
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		return NewGeminiClient(apiKey, cfg.Model), nil

	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaHost, cfg.Model), nil

	case config.ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
