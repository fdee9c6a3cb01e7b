package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestOpenAI(t *testing.T, url string, retries int) *OpenAI {
	t.Helper()
	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: url, MaxRetries: retries, Logger: testLogger()})
	o.retry.initial = time.Millisecond
	return o
}

func completion(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`
}

func TestOpenAI_Chat_SendsVisionParts(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, completion("um gato"))
	}))
	defer srv.Close()

	o := newTestOpenAI(t, srv.URL, 0)
	resp, err := o.Chat(context.Background(), domain.ChatRequest{
		Model:     "gpt-4.1-mini",
		MaxTokens: 1000,
		Messages: []domain.Message{{
			Role: "user",
			Parts: []domain.ContentPart{
				domain.TextPart("Descreva esta imagem em detalhes."),
				domain.ImagePart("data:image/png;base64,AAAA"),
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "um gato", resp.Content)
	assert.Equal(t, 12, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4.1-mini", got["model"])
	assert.EqualValues(t, 1000, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", img["image_url"].(map[string]any)["url"])
}

func TestOpenAI_Chat_PlainTextContentIsString(t *testing.T) {
	var got struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, completion("ok"))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL, 0).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "resuma"}},
	})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "resuma", got.Messages[0].Content)
}

func TestOpenAI_Chat_RetriesServerErrorOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, completion("second try"))
	}))
	defer srv.Close()

	resp, err := newTestOpenAI(t, srv.URL, 1).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "second try", resp.Content)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAI_Chat_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL, 1).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAI_Chat_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad image"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL, 3).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai 400")
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAI_Chat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	resp, err := newTestOpenAI(t, srv.URL, 0).Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}

func TestOpenAI_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	require.NoError(t, newTestOpenAI(t, srv.URL, 0).Healthy(context.Background()))

	bad := NewOpenAI(OpenAIConfig{APIKey: "wrong", APIBase: srv.URL, Logger: testLogger()})
	require.ErrorContains(t, bad.Healthy(context.Background()), "invalid API key")
}
