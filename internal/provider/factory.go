package provider

import (
	"log/slog"

	"mediarelay/internal/config"
)

// Set holds the AI clients built from one config section. They share a
// pooled HTTP client and are safe for concurrent use.
type Set struct {
	Chat   *OpenAI
	Speech *WhisperProvider
}

// NewSet builds the chat and speech clients from cfg.
func NewSet(cfg config.AIConfig, logger *slog.Logger) *Set {
	client := SharedHTTPClient(cfg.Timeout)
	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; AI calls will be rejected upstream")
	}
	return &Set{
		Chat: NewOpenAI(OpenAIConfig{
			APIKey:     cfg.APIKey,
			APIBase:    cfg.APIBase,
			Model:      cfg.ChatModel,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
			Logger:     logger,
		}),
		Speech: NewWhisperProvider(WhisperConfig{
			APIBase:    cfg.APIBase,
			APIKey:     cfg.APIKey,
			Model:      cfg.TranscriptionModel,
			Language:   cfg.Language,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
			Logger:     logger,
		}),
	}
}
