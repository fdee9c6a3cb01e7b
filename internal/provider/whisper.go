package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"mediarelay/internal/domain"
)

// WhisperConfig configures the Whisper speech-to-text provider.
type WhisperConfig struct {
	APIBase    string // e.g., "https://api.openai.com/v1"
	APIKey     string
	Model      string // e.g., "whisper-1"
	Language   string // optional: ISO-639-1 language code
	MaxRetries int
	Client     *http.Client
	Logger     *slog.Logger
}

// WhisperProvider handles speech-to-text transcription using the OpenAI-compatible Whisper API.
type WhisperProvider struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	retry    retryPolicy
	client   *http.Client
	logger   *slog.Logger
}

// NewWhisperProvider creates a new Whisper transcription provider.
func NewWhisperProvider(cfg WhisperConfig) *WhisperProvider {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhisperProvider{
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		retry:    newRetryPolicy(cfg.MaxRetries),
		client:   cfg.Client,
		logger:   cfg.Logger.With(slog.String("provider", "whisper")),
	}
}

// TranscriptionResult contains the result of a transcription.
type TranscriptionResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe converts audio data to text.
// filename should include the extension (e.g., "audio.ogg"); the API uses it to pick a decoder.
func (w *WhisperProvider) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	body, contentType, err := w.buildForm(audio, filename)
	if err != nil {
		return "", err
	}

	url := w.apiBase + "/audio/transcriptions"
	resp, err := doWithRetry(ctx, w.client, w.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
		return req, nil
	}, w.logger)
	if err != nil {
		return "", fmt.Errorf("whisper API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}

	w.logger.Info("transcription complete",
		"text_len", len(result.Text),
		"language", result.Language,
		"duration", result.Duration,
	)

	return result.Text, nil
}

func (w *WhisperProvider) buildForm(audio []byte, filename string) ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	_ = writer.WriteField("model", w.model)
	_ = writer.WriteField("response_format", "json")
	if w.language != "" {
		_ = writer.WriteField("language", w.language)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

var _ domain.SpeechProvider = (*WhisperProvider)(nil)
