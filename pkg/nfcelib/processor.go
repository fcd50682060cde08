package nfcelib

import (
	"context"
	"io"
	"time"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/cache"
	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/processor"
	"github.com/rezonia/nfce-processor/internal/qr"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

// ExtractionResult represents a processed receipt with metadata
type ExtractionResult struct {
	Record   *model.InvoiceRecord
	Payload  *model.DecodedPayload
	Method   string
	Warnings []string
}

// PipelineOptions configures pipeline behavior
type PipelineOptions struct {
	Timeout      time.Duration // Per-request portal timeout (default: 10s)
	UserAgent    string        // User-Agent sent to state portals
	MaxBodyBytes int64         // Response size limit (default: 5 MiB)
	MaxImageSide int           // Longest image side before QR decoding (default: 1600, 0 disables)

	// CachePath enables a bbolt document cache when set
	CachePath string
	CacheTTL  time.Duration
}

// DefaultPipelineOptions returns default pipeline options
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Timeout:      sefaz.DefaultTimeout,
		UserAgent:    sefaz.DefaultUserAgent,
		MaxBodyBytes: sefaz.DefaultMaxBodyBytes,
		MaxImageSide: qr.DefaultMaxDimension,
	}
}

// Processor runs the receipt pipeline. It is safe for concurrent use.
type Processor struct {
	pipeline *processor.Pipeline
	store    *cache.BoltStore
}

// NewProcessor creates a new receipt processor with the given options
func NewProcessor(opts PipelineOptions) (*Processor, error) {
	var clientOpts []sefaz.Option
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, sefaz.WithTimeout(opts.Timeout))
	}
	if opts.UserAgent != "" {
		clientOpts = append(clientOpts, sefaz.WithUserAgent(opts.UserAgent))
	}
	if opts.MaxBodyBytes > 0 {
		clientOpts = append(clientOpts, sefaz.WithMaxBodyBytes(opts.MaxBodyBytes))
	}
	client := sefaz.NewClient(clientOpts...)

	p := &Processor{}
	var fetcher processor.Fetcher = client
	if opts.CachePath != "" {
		store, err := cache.NewBoltStore(opts.CachePath, cache.WithTTL(opts.CacheTTL))
		if err != nil {
			return nil, err
		}
		p.store = store
		fetcher = cache.NewCachingFetcher(store, client)
	}

	p.pipeline = processor.NewPipeline(
		processor.WithDecoder(qr.NewDecoder(qr.WithMaxDimension(opts.MaxImageSide))),
		processor.WithFetcher(fetcher),
	)
	return p, nil
}

// NewDefaultProcessor creates a processor with default options
func NewDefaultProcessor() *Processor {
	p, _ := NewProcessor(DefaultPipelineOptions())
	return p
}

// Close releases the document cache, if any
func (p *Processor) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// Process reads r and dispatches on its content: image or PDF bytes,
// a saved XML/HTML body, or a typed key/URL
func (p *Processor) Process(ctx context.Context, r io.Reader) (*ExtractionResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return convert(p.pipeline.Process(ctx, data, model.AccessKey{}))
}

// ProcessText processes a typed access key or QR URL
func (p *Processor) ProcessText(ctx context.Context, text string) (*ExtractionResult, error) {
	return convert(p.pipeline.ProcessText(ctx, text))
}

// ProcessImage processes encoded image or PDF bytes
func (p *Processor) ProcessImage(ctx context.Context, data []byte, mimeType string) (*ExtractionResult, error) {
	return convert(p.pipeline.ProcessImage(ctx, data, mimeType))
}

// ProcessDocument parses a saved portal body. key may be empty for XML.
func (p *Processor) ProcessDocument(ctx context.Context, body []byte, key string) (*ExtractionResult, error) {
	raw := &model.RawDocument{Body: string(body)}
	if key != "" {
		k, err := accesskey.Resolve(key)
		if err != nil {
			return nil, model.NewStageError(model.StageResolve, "", err)
		}
		raw.Key = k
	}
	return convert(p.pipeline.ProcessDocument(ctx, raw))
}

// ProcessBatch processes multiple inputs concurrently. Results keep the
// input order; a failed input leaves a nil entry and the first error is
// returned.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []io.Reader) ([]*ExtractionResult, error) {
	results := make([]*ExtractionResult, len(inputs))
	errCh := make(chan error, len(inputs))

	for i, input := range inputs {
		go func(idx int, r io.Reader) {
			result, err := p.Process(ctx, r)
			if err != nil {
				errCh <- err
				return
			}
			results[idx] = result
			errCh <- nil
		}(i, input)
	}

	// Wait for all goroutines
	var firstErr error
	for range inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

func convert(r *processor.Result) (*ExtractionResult, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	return &ExtractionResult{
		Record:   r.Record,
		Payload:  r.Payload,
		Method:   string(r.Method),
		Warnings: r.Warnings,
	}, nil
}
