// Package media turns fetched bytes into text: speech transcription,
// image description and document extraction.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mediarelay/internal/domain"
)

const (
	// DefaultAudioFilename names uploads so the speech API picks an Ogg/Opus decoder.
	DefaultAudioFilename = "audio.ogg"
	// DefaultVideoFilename is used when a video's audio track is transcribed.
	DefaultVideoFilename = "video.mp4"
)

// Transcriber converts audio bytes to text through a speech provider.
type Transcriber struct {
	speech domain.SpeechProvider
	logger *slog.Logger
}

func NewTranscriber(speech domain.SpeechProvider, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		speech: speech,
		logger: logger.With(slog.String("component", "transcriber")),
	}
}

// Transcribe returns the trimmed transcript. An empty filename means audio.ogg.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", domain.Validationf("Arquivo de áudio vazio")
	}
	if filename == "" {
		filename = DefaultAudioFilename
	}

	t.logger.Debug("sending audio for transcription", "bytes", len(data), "filename", filename)
	text, err := t.speech.Transcribe(ctx, data, filename)
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", domain.ErrClassification, err)
	}
	return strings.TrimSpace(text), nil
}
