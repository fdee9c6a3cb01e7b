package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"

	"mediarelay/internal/domain"
)

const (
	defaultSummaryChars = 4000
	summaryPrompt       = "Analise e resuma o seguinte documento:\n\n"
)

type docFormat int

const (
	formatText docFormat = iota
	formatPDF
	formatWord
)

func (f docFormat) String() string {
	switch f {
	case formatPDF:
		return "pdf"
	case formatWord:
		return "word"
	}
	return "text"
}

// DocumentConfig configures a DocumentExtractor.
type DocumentConfig struct {
	Chat         domain.ChatProvider // used only when analysis is requested
	Model        string
	MaxTokens    int
	SummaryChars int
	Logger       *slog.Logger
}

// DocumentExtractor pulls plain text out of PDF, Word and UTF-8 documents
// and optionally summarizes it.
type DocumentExtractor struct {
	chat         domain.ChatProvider
	model        string
	maxTokens    int
	summaryChars int
	logger       *slog.Logger

	pdfPages  func([]byte) ([]string, error)
	wordParas func([]byte) ([]string, error)
}

func NewDocumentExtractor(cfg DocumentConfig) *DocumentExtractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.SummaryChars <= 0 {
		cfg.SummaryChars = defaultSummaryChars
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DocumentExtractor{
		chat:         cfg.Chat,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		summaryChars: cfg.SummaryChars,
		logger:       cfg.Logger.With(slog.String("component", "document")),
		pdfPages:     pdfPageTexts,
		wordParas:    docxParagraphs,
	}
}

// Extract returns the document text and, when analyze is set and the text is
// not empty, a summary. A failed summary leaves analysis empty.
func (d *DocumentExtractor) Extract(ctx context.Context, data []byte, contentType, sourceURL string, analyze bool) (string, string, error) {
	text, err := d.ExtractText(data, contentType, sourceURL)
	if err != nil {
		return "", "", err
	}
	if !analyze || text == "" {
		return text, "", nil
	}

	analysis, err := d.Summarize(ctx, text)
	if err != nil {
		d.logger.Warn("document analysis failed", "error", err)
		return text, "", nil
	}
	return text, analysis, nil
}

// ExtractText dispatches on content type, URL suffix and byte signature.
func (d *DocumentExtractor) ExtractText(data []byte, contentType, sourceURL string) (string, error) {
	format := detectFormat(data, contentType, sourceURL)
	d.logger.Debug("extracting document", "format", format.String(), "bytes", len(data))

	var parts []string
	var err error
	switch format {
	case formatPDF:
		parts, err = d.pdfPages(data)
	case formatWord:
		parts, err = d.wordParas(data)
	default:
		if !utf8.Valid(data) {
			return "", domain.Unsupportedf("Tipo de documento não suportado: %s", contentType)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil {
		return "", domain.Unsupportedf("Tipo de documento não suportado: %s (%v)", contentType, err)
	}
	return joinLines(parts), nil
}

// Summarize sends the leading characters of text to the chat model.
func (d *DocumentExtractor) Summarize(ctx context.Context, text string) (string, error) {
	if d.chat == nil {
		return "", fmt.Errorf("%w: no chat provider configured", domain.ErrClassification)
	}
	resp, err := d.chat.Chat(ctx, domain.ChatRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		Messages: []domain.Message{{
			Role:    "user",
			Content: summaryPrompt + lo.Substring(text, 0, uint(d.summaryChars)),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: summary: %v", domain.ErrClassification, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// joinLines terminates every part with a newline and trims the result.
func joinLines(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func detectFormat(data []byte, contentType, sourceURL string) docFormat {
	ct := strings.ToLower(contentType)
	suffix := urlPath(sourceURL)

	switch {
	case strings.Contains(ct, "pdf"), strings.HasSuffix(suffix, ".pdf"):
		return formatPDF
	case strings.Contains(ct, "word"),
		strings.HasSuffix(suffix, ".doc"), strings.HasSuffix(suffix, ".docx"):
		return formatWord
	}

	if len(data) == 0 {
		return formatText
	}
	switch mt := mimetype.Detect(data); {
	case mt.Is("application/pdf"), bytes.HasPrefix(data, []byte("%PDF")):
		return formatPDF
	case mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
		bytes.HasPrefix(data, []byte("PK\x03\x04")) && bytes.Contains(data, []byte(docxBody)):
		return formatWord
	}
	return formatText
}

// urlPath returns the lower-cased path of raw without query or fragment.
func urlPath(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return strings.ToLower(u.Path)
}
