package domain

import "strings"

// Kind is the declared media category of an inbound message.
type Kind string

const (
	KindText     Kind = "text"
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindLocation Kind = "location"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindText, KindAudio, KindImage, KindDocument, KindVideo, KindLocation}

// ParseKind normalizes s and returns the matching Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindText, KindAudio, KindImage, KindDocument, KindVideo, KindLocation:
		return k, nil
	}
	return "", Unsupportedf("Tipo de mensagem não suportado: %s", s)
}

// NeedsMedia reports whether the kind is resolved from a fetched resource.
func (k Kind) NeedsMedia() bool {
	switch k {
	case KindAudio, KindImage, KindDocument, KindVideo:
		return true
	}
	return false
}

// MediaReference points at the bytes of one inbound message.
// Either SourceURL or Data is set for media kinds.
type MediaReference struct {
	Kind        Kind
	SourceURL   string
	ContentType string // declared, optional
	Data        []byte // inline upload
	Filename    string // inline upload name, optional
}

// HasInlineData reports whether the reference carries its own bytes.
func (r MediaReference) HasInlineData() bool {
	return len(r.Data) > 0
}

// FetchedResource is the raw payload of a MediaReference, owned by one request.
type FetchedResource struct {
	Data        []byte
	ContentType string
	SourceURL   string
	Filename    string
}

// ExtractedContent is what a classifier produced for a resource.
type ExtractedContent struct {
	Kind     Kind
	Text     string
	Analysis string
	Degraded bool // a fallback phrase replaced a failed classifier
}

// Body returns the analysis when present, otherwise the extracted text.
func (c ExtractedContent) Body() string {
	if strings.TrimSpace(c.Analysis) != "" {
		return c.Analysis
	}
	return c.Text
}

// ComposedMessage is the final outbound string for one inbound message.
type ComposedMessage struct {
	Kind    Kind
	Content string
}
