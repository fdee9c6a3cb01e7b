package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/config"
)

func TestWhisper_Transcribe_SendsMultipart(t *testing.T) {
	var (
		model, format, filename string
		payload                 []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		model = r.FormValue("model")
		format = r.FormValue("response_format")
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		filename = hdr.Filename
		payload, _ = io.ReadAll(f)
		_, _ = io.WriteString(w, `{"text":"olá mundo"}`)
	}))
	defer srv.Close()

	wp := NewWhisperProvider(WhisperConfig{APIBase: srv.URL, APIKey: "sk-test", Logger: testLogger()})
	text, err := wp.Transcribe(context.Background(), []byte("OggS"), "audio.ogg")
	require.NoError(t, err)
	assert.Equal(t, "olá mundo", text)
	assert.Equal(t, "whisper-1", model)
	assert.Equal(t, "json", format)
	assert.Equal(t, "audio.ogg", filename)
	assert.Equal(t, []byte("OggS"), payload)
}

func TestWhisper_Transcribe_RetryResendsBody(t *testing.T) {
	var sizes []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		sizes = append(sizes, hdr.Size)
		if len(sizes) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	wp := NewWhisperProvider(WhisperConfig{APIBase: srv.URL, MaxRetries: 1, Logger: testLogger()})
	wp.retry.initial = time.Millisecond

	text, err := wp.Transcribe(context.Background(), []byte("0123456789"), "audio.ogg")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, []int64{10, 10}, sizes)
}

func TestWhisper_Transcribe_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}))
	defer srv.Close()

	wp := NewWhisperProvider(WhisperConfig{APIBase: srv.URL, Logger: testLogger()})
	_, err := wp.Transcribe(context.Background(), []byte("x"), "audio.ogg")
	require.ErrorContains(t, err, "status 400")
}

func TestNewSet_UsesConfig(t *testing.T) {
	cfg := config.Defaults().AI
	cfg.APIKey = "sk-test"
	cfg.ChatModel = "gpt-4o"

	set := NewSet(cfg, testLogger())
	assert.Equal(t, "gpt-4o", set.Chat.Model())
	assert.Equal(t, "whisper-1", set.Speech.model)
	assert.Same(t, set.Chat.client, set.Speech.client)
}
