// Package pipeline runs one inbound message through validation, fetch,
// classification, composition and delivery.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mediarelay/internal/compose"
	"mediarelay/internal/domain"
	"mediarelay/internal/media"
	"mediarelay/internal/metrics"
)

// State is a step of one pipeline run.
type State string

const (
	StateValidating  State = "Validating"
	StateFetching    State = "Fetching"
	StateClassifying State = "Classifying"
	StateComposing   State = "Composing"
	StateDelivering  State = "Delivering"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
)

type Resolver interface {
	Resolve(ctx context.Context, ref domain.MediaReference) (*domain.FetchedResource, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, filename string) (string, error)
}

type Describer interface {
	Describe(ctx context.Context, data []byte, contentType, prompt string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType, sourceURL string, analyze bool) (string, string, error)
}

// Deliverer is the conversation system client.
type Deliverer interface {
	Create(ctx context.Context, target domain.DeliveryTarget, content string) (domain.ID, error)
	Append(ctx context.Context, target domain.DeliveryTarget, conversationID domain.ID, content string) error
	UploadAttachment(ctx context.Context, target domain.DeliveryTarget, conversationID domain.ID, filename string, data []byte, contentType string) error
}

// Config wires an Orchestrator. Every collaborator is injected.
type Config struct {
	Fetcher     Resolver
	Transcriber Transcriber
	Vision      Describer
	Documents   Extractor
	Composer    *compose.Composer
	Delivery    Deliverer
	AttachMedia bool // default for requests that leave attach_media unset
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type Orchestrator struct {
	fetcher     Resolver
	transcriber Transcriber
	vision      Describer
	documents   Extractor
	composer    *compose.Composer
	delivery    Deliverer
	attachMedia bool
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Composer == nil {
		cfg.Composer = compose.New(nil)
	}
	return &Orchestrator{
		fetcher:     cfg.Fetcher,
		transcriber: cfg.Transcriber,
		vision:      cfg.Vision,
		documents:   cfg.Documents,
		composer:    cfg.Composer,
		delivery:    cfg.Delivery,
		attachMedia: cfg.AttachMedia,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With(slog.String("component", "pipeline")),
	}
}

// ProcessAndSend composes the message for req and delivers it in mode.
// Classification and delivery failures are absorbed into the Result.
func (o *Orchestrator) ProcessAndSend(ctx context.Context, req Request, mode domain.DeliveryMode) (*Result, error) {
	r := o.start(ctx, "process_and_send")

	kind, err := validateRequest(req)
	if err != nil {
		return nil, r.fail(err)
	}
	target, err := validateTarget(req.Chatwoot, mode)
	if err != nil {
		return nil, r.fail(err)
	}
	r.logger = r.logger.With("kind", kind, "mode", mode)

	var (
		resource  *domain.FetchedResource
		extracted = domain.ExtractedContent{Kind: kind, Text: req.TextContent}
	)
	if kind.NeedsMedia() {
		r.to(StateFetching)
		resource, err = o.fetcher.Resolve(ctx, req.Reference(kind))
		if err != nil {
			return nil, r.fail(err)
		}

		r.to(StateClassifying)
		extracted, err = o.classify(ctx, kind, resource, req)
		// an undecodable document is the caller's fault; anything else falls back
		if errors.Is(err, domain.ErrUnsupportedMedia) {
			return nil, r.fail(err)
		}
		if err != nil {
			r.logger.Warn("classification failed, using fallback", "error", err)
			o.metrics.Fallback(string(kind))
			extracted = domain.ExtractedContent{Kind: kind, Text: o.composer.Fallback(kind), Degraded: true}
		}
	}

	r.to(StateComposing)
	msg, err := o.composer.Compose(kind, extracted.Body(), req.Latitude.String(), req.Longitude.String())
	if err != nil {
		return nil, r.fail(err)
	}

	r.to(StateDelivering)
	delivery := o.deliver(ctx, r, target, mode, msg.Content)
	if delivery.Sent && resource != nil && len(resource.Data) > 0 && o.shouldAttach(req) {
		delivery.AttachmentAttempted = true
		delivery.AttachmentSent = o.attach(ctx, r, target, delivery.ConversationID, kind, resource)
	}

	r.done()
	return &Result{
		Kind:          kind,
		Content:       msg.Content,
		Transcription: transcriptOf(extracted),
		Text:          extracted.Text,
		Analysis:      extracted.Analysis,
		Degraded:      extracted.Degraded,
		Delivery:      delivery,
	}, nil
}

func (o *Orchestrator) classify(ctx context.Context, kind domain.Kind, res *domain.FetchedResource, req Request) (domain.ExtractedContent, error) {
	out := domain.ExtractedContent{Kind: kind}
	var err error
	switch kind {
	case domain.KindAudio:
		out.Text, err = o.transcriber.Transcribe(ctx, res.Data, media.DefaultAudioFilename)
	case domain.KindVideo:
		out.Text, err = o.transcriber.Transcribe(ctx, res.Data, media.DefaultVideoFilename)
	case domain.KindImage:
		out.Text, err = o.vision.Describe(ctx, res.Data, res.ContentType, req.Prompt)
	case domain.KindDocument:
		out.Text, out.Analysis, err = o.documents.Extract(ctx, res.Data, res.ContentType, res.SourceURL, req.Analyze)
	default:
		err = domain.Unsupportedf("Tipo de mensagem não suportado: %s", kind)
	}
	return out, err
}

func (o *Orchestrator) deliver(ctx context.Context, r *run, target domain.DeliveryTarget, mode domain.DeliveryMode, content string) domain.DeliveryResult {
	var res domain.DeliveryResult
	if mode == domain.DeliveryAppend {
		if err := o.delivery.Append(ctx, target, target.ConversationID, content); err != nil {
			r.logger.Warn("delivery failed", "error", err)
			o.metrics.Delivery(string(mode), false)
			return res
		}
		res.Sent, res.ConversationID = true, target.ConversationID
	} else {
		id, err := o.delivery.Create(ctx, target, content)
		if err != nil {
			r.logger.Warn("delivery failed", "error", err)
			o.metrics.Delivery(string(mode), false)
			return res
		}
		res.Sent, res.ConversationID = true, id
	}
	o.metrics.Delivery(string(mode), true)
	return res
}

func (o *Orchestrator) shouldAttach(req Request) bool {
	if req.AttachMedia != nil {
		return *req.AttachMedia
	}
	return o.attachMedia
}

// attach uploads the original bytes after a delivered message. Failures are
// logged only.
func (o *Orchestrator) attach(ctx context.Context, r *run, target domain.DeliveryTarget, convID domain.ID, kind domain.Kind, res *domain.FetchedResource) bool {
	name := attachmentName(kind, res)
	if err := o.delivery.UploadAttachment(ctx, target, convID, name, res.Data, res.ContentType); err != nil {
		r.logger.Warn("attachment upload failed", "filename", name, "error", err)
		o.metrics.Attachment(false)
		return false
	}
	o.metrics.Attachment(true)
	return true
}

func transcriptOf(c domain.ExtractedContent) string {
	if c.Kind == domain.KindAudio || c.Kind == domain.KindVideo {
		return c.Text
	}
	return ""
}

// run tracks the state of one request for logs and metrics.
type run struct {
	o       *Orchestrator
	op      string
	state   State
	entered time.Time
	logger  *slog.Logger
}

func (o *Orchestrator) start(ctx context.Context, op string) *run {
	logger := o.logger.With("op", op)
	if id := RequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	r := &run{o: o, op: op, state: StateValidating, entered: time.Now(), logger: logger}
	o.metrics.Transition(string(StateValidating))
	return r
}

func (r *run) to(next State) {
	elapsed := time.Since(r.entered)
	r.o.metrics.ObserveStage(string(r.state), elapsed)
	r.o.metrics.Transition(string(next))
	r.logger.Debug("pipeline transition", "from", r.state, "to", next, "elapsed", elapsed)
	r.state, r.entered = next, time.Now()
}

func (r *run) fail(err error) error {
	from := r.state
	r.to(StateFailed)
	r.logger.Info("pipeline failed", "state", from, "error", err)
	r.o.metrics.Request(r.op, "failed")
	return err
}

func (r *run) done() {
	r.to(StateDone)
	r.o.metrics.Request(r.op, "ok")
}

type requestIDKey struct{}

// WithRequestID tags ctx so pipeline logs carry the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
