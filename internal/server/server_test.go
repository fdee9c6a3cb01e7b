package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/domain"
	"mediarelay/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProcessor struct {
	result *pipeline.Result
	err    error
	panics bool

	req  pipeline.Request
	mode domain.DeliveryMode
	op   string
}

func (f *fakeProcessor) record(op string, req pipeline.Request) (*pipeline.Result, error) {
	if f.panics {
		panic("boom")
	}
	f.op, f.req = op, req
	return f.result, f.err
}

func (f *fakeProcessor) ProcessAndSend(_ context.Context, req pipeline.Request, mode domain.DeliveryMode) (*pipeline.Result, error) {
	f.mode = mode
	return f.record("process", req)
}

func (f *fakeProcessor) Transcribe(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return f.record("transcribe", req)
}

func (f *fakeProcessor) AnalyzeImage(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return f.record("analyze", req)
}

func (f *fakeProcessor) ExtractDocument(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return f.record("extract", req)
}

func newTestServer(p Processor) *Server {
	return New(Config{Pipeline: p, Logger: testLogger()})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeProcessor{})

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodHead, "/health", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestProcessAndSend_MissingMessageTypeIs400(t *testing.T) {
	// real orchestrator: validation fails before any collaborator is used
	s := newTestServer(pipeline.New(pipeline.Config{Logger: testLogger()}))

	for _, path := range []string{"/process-and-send-new", "/process-and-send", "/process-and-send-existing"} {
		t.Run(path, func(t *testing.T) {
			rec, body := doJSON(t, s.Handler(), http.MethodPost, path,
				`{"text_content":"oi","twilio_url":"https://x/y","chatwoot":{"api_url":"https://c","api_token":"t","account_id":1,"inbox_id":2,"source_id":"s","conversation_id":3}}`)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], "message_type")
		})
	}
}

func TestProcessAndSendNew_ResponseShape(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{
		Content: "Localização: https://www.google.com/maps?q=10.0,20.0",
		Delivery: domain.DeliveryResult{
			Sent:                true,
			ConversationID:      "42",
			AttachmentAttempted: true,
			AttachmentSent:      false,
		},
	}}
	s := newTestServer(fp)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/process-and-send-new",
		`{"message_type":"location","latitude":10.0,"longitude":"20.0","chatwoot":{"api_url":"https://c","api_token":"t","account_id":1,"inbox_id":2,"source_id":"s"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, domain.DeliveryCreate, fp.mode)
	assert.Equal(t, domain.FlexString("10.0"), fp.req.Latitude)
	assert.Equal(t, domain.FlexString("20.0"), fp.req.Longitude)
	assert.Equal(t, domain.ID("2"), fp.req.Chatwoot.InboxID)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Localização: https://www.google.com/maps?q=10.0,20.0", body["conteudo"])
	assert.EqualValues(t, 42, body["conversation_id"])
	assert.Equal(t, true, body["chatwoot_sent"])
	assert.Equal(t, false, body["attachment_sent"])
}

func TestProcessAndSend_NotDeliveredOmitsConversationID(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{Content: "oi"}}
	s := newTestServer(fp)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/process-and-send", `{"message_type":"text","text_content":"oi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DeliveryAppend, fp.mode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["chatwoot_sent"])
	assert.NotContains(t, body, "conversation_id")
	assert.NotContains(t, body, "attachment_sent")
}

func TestProcessAndSendExisting_Alias(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{Content: "oi"}}
	s := newTestServer(fp)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/process-and-send-existing", `{"message_type":"text","text_content":"oi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.DeliveryAppend, fp.mode)
}

func TestTranscribe_JSON(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{Transcription: "olá"}}
	s := newTestServer(fp)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/transcribe", `{"twilio_url":"https://api.twilio.com/m/1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "transcribe", fp.op)
	assert.Equal(t, "https://api.twilio.com/m/1", fp.req.SourceURL)
	assert.Equal(t, map[string]any{"success": true, "transcription": "olá"}, body)
}

func TestTranscribe_MissingURLFromRealPipeline(t *testing.T) {
	s := newTestServer(pipeline.New(pipeline.Config{Logger: testLogger()}))

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/transcribe", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `Campo "twilio_url" é obrigatório`, body["error"])
}

func TestAnalyzeImage_PassesPrompt(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{Analysis: "um gato"}}
	s := newTestServer(fp)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/analyze-image", `{"twilio_url":"https://x/i","prompt":"o que é?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o que é?", fp.req.Prompt)
	assert.Equal(t, "um gato", body["analysis"])
}

func TestExtractDocument_AnalysisOptional(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{Text: "texto"}}
	s := newTestServer(fp)

	_, body := doJSON(t, s.Handler(), http.MethodPost, "/extract-document", `{"twilio_url":"https://x/d.pdf"}`)
	assert.Equal(t, "texto", body["text"])
	assert.NotContains(t, body, "analysis")

	fp.result = &pipeline.Result{Text: "texto", Analysis: "resumo"}
	_, body = doJSON(t, s.Handler(), http.MethodPost, "/extract-document", `{"twilio_url":"https://x/d.pdf","analyze":true}`)
	assert.True(t, fp.req.Analyze)
	assert.Equal(t, "resumo", body["analysis"])
}

func TestMultipartUpload(t *testing.T) {
	fp := &fakeProcessor{result: &pipeline.Result{Text: "conteúdo"}}
	s := newTestServer(fp)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("analyze", "true"))
	part, err := w.CreateFormFile("file", "contrato.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/extract-document", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []byte("%PDF-1.4"), fp.req.Data)
	assert.Equal(t, "contrato.pdf", fp.req.Filename)
	assert.Empty(t, fp.req.ContentType)
	assert.True(t, fp.req.Analyze)
}

func TestInvalidJSON(t *testing.T) {
	s := newTestServer(&fakeProcessor{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/transcribe", `{"twilio_url":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	// decoder details stay in the log
	assert.Equal(t, "JSON inválido", body["error"])
}

func TestPipelineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"fetch rejected", &domain.FetchError{StatusCode: 404}, http.StatusBadRequest},
		{"fetch network", &domain.FetchError{Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
		{"unsupported", domain.Unsupportedf("Tipo de documento não suportado: x"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeProcessor{err: tt.err})
			rec, body := doJSON(t, s.Handler(), http.MethodPost, "/extract-document", `{"twilio_url":"https://x"}`)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, pipeline.PublicMessage(tt.err), body["error"])
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := newTestServer(&fakeProcessor{panics: true})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/transcribe", `{"twilio_url":"https://x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(&fakeProcessor{})
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(&fakeProcessor{})
	rec, _ := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsListener(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Config{Pipeline: &fakeProcessor{result: &pipeline.Result{}}, Registry: reg, Logger: testLogger()})
	require.NotNil(t, s.MetricsHandler())

	doJSON(t, s.Handler(), http.MethodPost, "/transcribe", `{"twilio_url":"https://x"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediarelay_http_request")
}

func TestMetricsDisabled(t *testing.T) {
	assert.Nil(t, newTestServer(&fakeProcessor{}).MetricsHandler())
}
