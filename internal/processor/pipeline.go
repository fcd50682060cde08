// Package processor chains the pipeline stages: QR decode, access key,
// issuing state, document fetch, classification and parsing.
package processor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/parser"
	"github.com/rezonia/nfce-processor/internal/qr"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

var logger = logrus.WithField("component", "processor")

// ExtractionMethod tells how the access key was obtained
type ExtractionMethod string

const (
	MethodQR       ExtractionMethod = "qr"
	MethodText     ExtractionMethod = "text"
	MethodDocument ExtractionMethod = "document"
)

// Fetcher retrieves the portal document for a key. sefaz.Client and
// cache.CachingFetcher implement it.
type Fetcher interface {
	Fetch(ctx context.Context, key model.AccessKey, uf model.UF) (*model.RawDocument, error)
}

// Result holds the outcome of one invocation
type Result struct {
	Record   *model.InvoiceRecord
	Payload  *model.DecodedPayload
	Method   ExtractionMethod
	Warnings []string
	Error    error
}

// Pipeline orchestrates the processing stages. It holds no mutable state
// and is safe for concurrent use.
type Pipeline struct {
	decoder  *qr.Decoder
	fetcher  Fetcher
	registry *parser.Registry
}

// PipelineOption configures the pipeline
type PipelineOption func(*Pipeline)

// WithDecoder sets the QR decoder
func WithDecoder(d *qr.Decoder) PipelineOption {
	return func(p *Pipeline) {
		p.decoder = d
	}
}

// WithFetcher sets the document fetcher
func WithFetcher(f Fetcher) PipelineOption {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// WithRegistry sets the parser registry
func WithRegistry(r *parser.Registry) PipelineOption {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// NewPipeline creates a new processing pipeline
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.decoder == nil {
		p.decoder = qr.NewDecoder()
	}
	if p.fetcher == nil {
		p.fetcher = sefaz.NewClient()
	}
	if p.registry == nil {
		p.registry = parser.NewRegistry()
	}
	return p
}

// ProcessPixels runs the whole pipeline on a raw pixel buffer
func (p *Pipeline) ProcessPixels(ctx context.Context, buf qr.PixelBuffer) *Result {
	result := &Result{Method: MethodQR}
	text, err := p.decoder.Decode(buf)
	if err != nil {
		return p.fail(result, model.StageDecode, "", err)
	}
	return p.fromText(ctx, result, text)
}

// ProcessImage runs the whole pipeline on encoded image or PDF bytes.
// Bytes that cannot be loaded as an image count as an image without a QR.
func (p *Pipeline) ProcessImage(ctx context.Context, data []byte, mimeType string) *Result {
	result := &Result{Method: MethodQR}
	img, err := qr.LoadImage(data, mimeType)
	if err != nil {
		return p.fail(result, model.StageDecode, "", fmt.Errorf("%w: %v", model.ErrQRNotFound, err))
	}
	text, err := p.decoder.DecodeImage(img)
	if err != nil {
		return p.fail(result, model.StageDecode, "", err)
	}
	return p.fromText(ctx, result, text)
}

// ProcessText runs the pipeline from a manually entered key or QR URL
func (p *Pipeline) ProcessText(ctx context.Context, text string) *Result {
	return p.fromText(ctx, &Result{Method: MethodText}, text)
}

// ProcessDocument parses a previously saved portal body without touching
// the network. An unrecognized Kind is classified from the body; a missing
// UF is derived from the key.
func (p *Pipeline) ProcessDocument(ctx context.Context, raw *model.RawDocument) *Result {
	result := &Result{Method: MethodDocument}
	doc := *raw
	if doc.Kind == model.DocumentUnrecognized {
		doc.Kind = sefaz.Classify(doc.Body)
	}
	if doc.UF == "" && !doc.Key.IsZero() {
		uf, err := accesskey.ResolveUF(doc.Key)
		if err != nil {
			return p.fail(result, model.StageUF, doc.Key.String(), err)
		}
		doc.UF = uf
	}
	return p.parse(ctx, result, &doc)
}

func (p *Pipeline) fromText(ctx context.Context, result *Result, text string) *Result {
	payload := accesskey.Decode(text)
	result.Payload = &payload

	key, err := accesskey.Resolve(text)
	if err != nil {
		return p.fail(result, model.StageResolve, "", err)
	}

	uf, err := accesskey.ResolveUF(key)
	if err != nil {
		return p.fail(result, model.StageUF, key.String(), err)
	}

	doc, err := p.fetcher.Fetch(ctx, key, uf)
	if err != nil {
		return p.fail(result, model.StageFetch, key.String(), err)
	}
	return p.parse(ctx, result, doc)
}

func (p *Pipeline) parse(ctx context.Context, result *Result, doc *model.RawDocument) *Result {
	key := doc.Key.String()
	if doc.Kind == model.DocumentUnrecognized {
		return p.fail(result, model.StageClassify, key,
			fmt.Errorf("%w: body is neither XML nor HTML", model.ErrUnparseableResponse))
	}

	rec, err := p.registry.Parse(ctx, doc)
	if err != nil {
		return p.fail(result, model.StageParse, key, err)
	}

	result.Record = rec
	result.Warnings = rec.Warnings
	logger.WithFields(logrus.Fields{
		"key":      rec.AccessKey.String(),
		"source":   rec.Source,
		"items":    len(rec.Items),
		"warnings": len(rec.Warnings),
	}).Debug("invoice processed")
	return result
}

func (p *Pipeline) fail(result *Result, stage model.Stage, key string, err error) *Result {
	logger.WithFields(logrus.Fields{"stage": stage, "key": key}).WithError(err).Warn("pipeline failed")
	result.Error = model.NewStageError(stage, key, err)
	return result
}
