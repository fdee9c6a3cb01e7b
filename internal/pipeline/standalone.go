package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"mediarelay/internal/domain"
	"mediarelay/internal/media"
)

// Transcribe fetches audio and returns its transcript. Unlike ProcessAndSend,
// a failed transcription is returned to the caller.
func (o *Orchestrator) Transcribe(ctx context.Context, req Request) (*Result, error) {
	r := o.start(ctx, "transcribe")
	res, err := o.fetchOnly(ctx, r, req, domain.KindAudio)
	if err != nil {
		return nil, err
	}

	r.to(StateClassifying)
	filename := media.DefaultAudioFilename
	if res.Filename != "" && len(req.Data) > 0 {
		filename = res.Filename
	}
	text, err := o.transcriber.Transcribe(ctx, res.Data, filename)
	if err != nil {
		return nil, r.fail(err)
	}
	r.done()
	return &Result{Kind: domain.KindAudio, Transcription: text, Text: text}, nil
}

// AnalyzeImage describes the referenced image with req.Prompt or the default prompt.
func (o *Orchestrator) AnalyzeImage(ctx context.Context, req Request) (*Result, error) {
	r := o.start(ctx, "analyze_image")
	res, err := o.fetchOnly(ctx, r, req, domain.KindImage)
	if err != nil {
		return nil, err
	}

	r.to(StateClassifying)
	analysis, err := o.vision.Describe(ctx, res.Data, res.ContentType, req.Prompt)
	if err != nil {
		return nil, r.fail(err)
	}
	r.done()
	return &Result{Kind: domain.KindImage, Analysis: analysis}, nil
}

// ExtractDocument returns the document text and, when req.Analyze is set, a summary.
func (o *Orchestrator) ExtractDocument(ctx context.Context, req Request) (*Result, error) {
	r := o.start(ctx, "extract_document")
	res, err := o.fetchOnly(ctx, r, req, domain.KindDocument)
	if err != nil {
		return nil, err
	}

	r.to(StateClassifying)
	text, analysis, err := o.documents.Extract(ctx, res.Data, res.ContentType, res.SourceURL, req.Analyze)
	if err != nil {
		return nil, r.fail(err)
	}
	r.done()
	return &Result{Kind: domain.KindDocument, Text: text, Analysis: analysis}, nil
}

func (o *Orchestrator) fetchOnly(ctx context.Context, r *run, req Request, kind domain.Kind) (*domain.FetchedResource, error) {
	if err := requireMedia(req); err != nil {
		return nil, r.fail(err)
	}
	r.to(StateFetching)
	res, err := o.fetcher.Resolve(ctx, req.Reference(kind))
	if err != nil {
		return nil, r.fail(err)
	}
	return res, nil
}

// attachmentName keeps the fetched file name and adds an extension derived
// from the content type when the name has none.
func attachmentName(kind domain.Kind, res *domain.FetchedResource) string {
	name := strings.TrimSpace(res.Filename)
	if name == "" {
		name = string(kind)
	}
	if path.Ext(name) != "" {
		return name
	}
	ct := strings.TrimSpace(strings.SplitN(res.ContentType, ";", 2)[0])
	if mt := mimetype.Lookup(ct); mt != nil && mt.Extension() != "" {
		return name + mt.Extension()
	}
	if kind == domain.KindAudio {
		return name + path.Ext(media.DefaultAudioFilename)
	}
	return name
}
