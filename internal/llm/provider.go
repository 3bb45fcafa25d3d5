package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderFake   = "fake"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// RPS limits requests per second; zero disables the limiter.
	RPS   float64
	Burst int
}

// New builds the configured client wrapped with logging and rate limiting.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Client, error) {
	var inner Client
	switch cfg.Provider {
	case ProviderGemini, "":
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		g, err := NewGeminiClient(ctx, cfg.APIKey, model)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		inner = g
	case ProviderOpenAI:
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		inner = NewOpenAIClient(cfg.APIKey, model, cfg.BaseURL)
	case ProviderFake:
		inner = NewFakeClient()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return Wrap(inner, WithLogging(logger), RateLimit(cfg.RPS, cfg.Burst)), nil
}
