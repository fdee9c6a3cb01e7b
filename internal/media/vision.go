package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"mediarelay/internal/domain"
)

const (
	DefaultVisionPrompt = "Descreva esta imagem em detalhes."
	defaultMaxTokens    = 1000
	fallbackImageType   = "image/jpeg"
)

// VisionConfig configures a VisionDescriber.
type VisionConfig struct {
	Chat      domain.ChatProvider
	Model     string // empty uses the provider default
	Prompt    string
	MaxTokens int
	Logger    *slog.Logger
}

// VisionDescriber asks a multimodal chat model to describe an image.
type VisionDescriber struct {
	chat      domain.ChatProvider
	model     string
	prompt    string
	maxTokens int
	logger    *slog.Logger
}

func NewVisionDescriber(cfg VisionConfig) *VisionDescriber {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultVisionPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &VisionDescriber{
		chat:      cfg.Chat,
		model:     cfg.Model,
		prompt:    cfg.Prompt,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger.With(slog.String("component", "vision")),
	}
}

// Describe sends the image inline as a data URI. An empty prompt uses the default.
func (v *VisionDescriber) Describe(ctx context.Context, data []byte, contentType, prompt string) (string, error) {
	if len(data) == 0 {
		return "", domain.Validationf("Arquivo de imagem vazio")
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = v.prompt
	}

	resp, err := v.chat.Chat(ctx, domain.ChatRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		Messages: []domain.Message{{
			Role: "user",
			Parts: []domain.ContentPart{
				domain.TextPart(prompt),
				domain.ImagePart(DataURI(contentType, data)),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: vision: %v", domain.ErrClassification, err)
	}

	v.logger.Debug("image described", "bytes", len(data), "latency_ms", resp.LatencyMs)
	return strings.TrimSpace(resp.Content), nil
}

// DataURI encodes data as a base64 data URI. Non-image types are sent as image/jpeg.
func DataURI(contentType string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !strings.HasPrefix(mt, "image/") {
		mt = fallbackImageType
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
}
