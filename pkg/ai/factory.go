package ai

import (
	"fmt"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType

	// Gemini config
	GeminiAPIKey string
	GeminiModel  string

	// Ollama config
	OllamaBaseURL string
	OllamaModel   string
}

// NewExtractorService creates an ExtractorService based on the config.
// This is the factory function - switch AI provider by changing Provider.
func NewExtractorService(cfg Config) (ExtractorService, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel), nil

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	default:
		// Auto mode: Gemini with local Ollama as safety net when a key is
		// configured, plain Ollama otherwise.
		if cfg.GeminiAPIKey != "" {
			return NewFallbackService(
				NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel),
				NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel),
			), nil
		}
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	}
}
