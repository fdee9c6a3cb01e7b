package domain

import "context"

// ChatProvider is an OpenAI-compatible chat completion backend.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

// SpeechProvider turns audio bytes into text.
type SpeechProvider interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Content      string
	FinishReason string // stop | length
	Usage        Usage
	LatencyMs    int64 // time taken for this call in milliseconds
}

// Message is a chat turn. When Parts is non-empty it replaces Content
// on the wire so text and images can share one user turn.
type Message struct {
	Role    string        `json:"role"` // system | user | assistant
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// ContentPartType distinguishes multimodal parts.
type ContentPartType string

const (
	PartText     ContentPartType = "text"
	PartImageURL ContentPartType = "image_url"
)

type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"image_url,omitempty"` // http(s) or data: URI
}

// TextPart and ImagePart build content parts.
func TextPart(s string) ContentPart { return ContentPart{Type: PartText, Text: s} }

func ImagePart(url string) ContentPart { return ContentPart{Type: PartImageURL, ImageURL: url} }

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
