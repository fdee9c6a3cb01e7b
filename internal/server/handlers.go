package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"mediarelay/internal/domain"
	"mediarelay/internal/fetch"
	"mediarelay/internal/pipeline"
)

// Processor is the pipeline surface the HTTP layer needs.
type Processor interface {
	ProcessAndSend(ctx context.Context, req pipeline.Request, mode domain.DeliveryMode) (*pipeline.Result, error)
	Transcribe(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	AnalyzeImage(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	ExtractDocument(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// HealthHandler answers liveness probes.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// MediaHandler serves the classification and process-and-send endpoints.
type MediaHandler struct {
	pipeline Processor
	logger   *slog.Logger
}

func NewMediaHandler(log *slog.Logger, p Processor) *MediaHandler {
	return &MediaHandler{
		pipeline: p,
		logger:   log.With(slog.String("handler", "media")),
	}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.POST("/transcribe", h.Transcribe)
	e.POST("/analyze-image", h.AnalyzeImage)
	e.POST("/extract-document", h.ExtractDocument)
	e.POST("/process-and-send-new", h.ProcessAndSendNew)
	e.POST("/process-and-send", h.ProcessAndSendExisting)
	e.POST("/process-and-send-existing", h.ProcessAndSendExisting)
}

type TranscribeResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription"`
}

type AnalyzeImageResponse struct {
	Success  bool   `json:"success"`
	Analysis string `json:"analysis"`
}

type ExtractDocumentResponse struct {
	Success  bool   `json:"success"`
	Text     string `json:"text"`
	Analysis string `json:"analysis,omitempty"`
}

// ProcessResponse reports the composed text and what reached the conversation.
// ConversationID is present only when the message was delivered.
type ProcessResponse struct {
	Success        bool       `json:"success"`
	Content        string     `json:"conteudo"`
	ConversationID *domain.ID `json:"conversation_id,omitempty"`
	ChatwootSent   bool       `json:"chatwoot_sent"`
	AttachmentSent *bool      `json:"attachment_sent,omitempty"`
	Degraded       bool       `json:"degraded,omitempty"`
}

func (h *MediaHandler) Transcribe(c echo.Context) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	res, err := h.pipeline.Transcribe(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TranscribeResponse{Success: true, Transcription: res.Transcription})
}

func (h *MediaHandler) AnalyzeImage(c echo.Context) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	res, err := h.pipeline.AnalyzeImage(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AnalyzeImageResponse{Success: true, Analysis: res.Analysis})
}

func (h *MediaHandler) ExtractDocument(c echo.Context) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	res, err := h.pipeline.ExtractDocument(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ExtractDocumentResponse{Success: true, Text: res.Text, Analysis: res.Analysis})
}

func (h *MediaHandler) ProcessAndSendNew(c echo.Context) error {
	return h.processAndSend(c, domain.DeliveryCreate)
}

func (h *MediaHandler) ProcessAndSendExisting(c echo.Context) error {
	return h.processAndSend(c, domain.DeliveryAppend)
}

func (h *MediaHandler) processAndSend(c echo.Context, mode domain.DeliveryMode) error {
	req, err := bindRequest(c)
	if err != nil {
		return err
	}
	res, err := h.pipeline.ProcessAndSend(c.Request().Context(), req, mode)
	if err != nil {
		return err
	}

	out := ProcessResponse{
		Success:      true,
		Content:      res.Content,
		ChatwootSent: res.Delivery.Sent,
		Degraded:     res.Degraded,
	}
	if res.Delivery.Sent {
		id := res.Delivery.ConversationID
		out.ConversationID = &id
	}
	if res.Delivery.AttachmentAttempted {
		sent := res.Delivery.AttachmentSent
		out.AttachmentSent = &sent
	}
	return c.JSON(http.StatusOK, out)
}

// bindRequest reads a JSON body or, for multipart uploads, the "file" part
// plus the plain form fields.
func bindRequest(c echo.Context) (pipeline.Request, error) {
	var req pipeline.Request
	r := c.Request()

	if strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return bindMultipart(c)
	}

	err := json.NewDecoder(r.Body).Decode(&req)
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return req, he
		}
		return req, echo.NewHTTPError(http.StatusBadRequest, "JSON inválido").SetInternal(err)
	}
	return req, nil
}

func bindMultipart(c echo.Context) (pipeline.Request, error) {
	req := pipeline.Request{
		MessageType: c.FormValue("message_type"),
		TextContent: c.FormValue("text_content"),
		Latitude:    domain.FlexString(strings.TrimSpace(c.FormValue("latitude"))),
		Longitude:   domain.FlexString(strings.TrimSpace(c.FormValue("longitude"))),
		SourceURL:   c.FormValue("twilio_url"),
		ContentType: c.FormValue("content_type"),
		Prompt:      c.FormValue("prompt"),
	}
	if v := c.FormValue("analyze"); v != "" {
		req.Analyze, _ = strconv.ParseBool(v)
	}

	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "Formulário inválido").SetInternal(err)
	}
	data, err := readPart(fh)
	if err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "Arquivo inválido").SetInternal(err)
	}
	req.Data = data
	req.Filename = fh.Filename
	if ct := fh.Header.Get(echo.HeaderContentType); req.ContentType == "" && ct != echo.MIMEOctetStream {
		req.ContentType = ct
	}
	return req, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fetch.ReadAllWithLimit(f, fh.Size)
}
