package pipeline

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"mediarelay/internal/domain"
)

// Request is the inbound payload shared by every endpoint. Data and Filename
// carry a multipart upload and are never read from JSON.
type Request struct {
	MessageType string                 `json:"message_type"`
	TextContent string                 `json:"text_content"`
	Latitude    domain.FlexString      `json:"latitude"`
	Longitude   domain.FlexString      `json:"longitude"`
	SourceURL   string                 `json:"twilio_url"`
	ContentType string                 `json:"content_type"`
	Prompt      string                 `json:"prompt"`
	Analyze     bool                   `json:"analyze"`
	AttachMedia *bool                  `json:"attach_media"`
	Chatwoot    *domain.DeliveryTarget `json:"chatwoot"`

	Data     []byte `json:"-"`
	Filename string `json:"-"`
}

// Reference builds the media reference for kind.
func (r Request) Reference(kind domain.Kind) domain.MediaReference {
	return domain.MediaReference{
		Kind:        kind,
		SourceURL:   strings.TrimSpace(r.SourceURL),
		ContentType: r.ContentType,
		Data:        r.Data,
		Filename:    r.Filename,
	}
}

// Result is what a pipeline run produced. Delivery is zero for the
// standalone endpoints.
type Result struct {
	Kind          domain.Kind
	Content       string
	Transcription string
	Text          string
	Analysis      string
	Degraded      bool
	Delivery      domain.DeliveryResult
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks the fields every kind needs before anything is fetched.
func validateRequest(req Request) (domain.Kind, error) {
	if strings.TrimSpace(req.MessageType) == "" {
		return "", domain.Validationf(`Campo "message_type" é obrigatório`)
	}
	kind, err := domain.ParseKind(req.MessageType)
	if err != nil {
		return "", err
	}

	switch {
	case kind == domain.KindText:
		if strings.TrimSpace(req.TextContent) == "" {
			return "", domain.Validationf(`Campo "text_content" é obrigatório para mensagens de texto`)
		}
	case kind == domain.KindLocation:
		if req.Latitude == "" || req.Longitude == "" {
			return "", domain.Validationf(`Campos "latitude" e "longitude" são obrigatórios para localização`)
		}
	case kind.NeedsMedia():
		if err := requireMedia(req); err != nil {
			return "", err
		}
	}
	return kind, nil
}

func requireMedia(req Request) error {
	if len(req.Data) == 0 && strings.TrimSpace(req.SourceURL) == "" {
		return domain.Validationf(`Campo "twilio_url" é obrigatório`)
	}
	return nil
}

// validateTarget checks the delivery target for mode and returns a copy
// normalized to it: create mode never carries a conversation id.
func validateTarget(target *domain.DeliveryTarget, mode domain.DeliveryMode) (domain.DeliveryTarget, error) {
	if target == nil {
		return domain.DeliveryTarget{}, domain.Validationf(`Campo "chatwoot" é obrigatório`)
	}
	t := *target
	if mode == domain.DeliveryCreate {
		t.ConversationID = ""
	} else if t.Mode() != domain.DeliveryAppend {
		return t, domain.Validationf(`Campo "chatwoot.conversation_id" é obrigatório`)
	}

	err := validate.Struct(t)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "url" {
			return t, domain.Validationf(`Campo "chatwoot.%s" inválido`, fe.Field())
		}
		return t, domain.Validationf(`Campo "chatwoot.%s" é obrigatório`, fe.Field())
	}
	if err != nil {
		return t, err
	}
	return t, nil
}
