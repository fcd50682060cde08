package processor

import (
	"bytes"
	"context"
	"net/http"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/qr"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

// Format represents a local input format
type Format int

const (
	FormatUnknown Format = iota
	FormatImage
	FormatPDF
	FormatXML
	FormatHTML
	FormatText
)

// String returns the string representation of format
func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatPDF:
		return "pdf"
	case FormatXML:
		return "xml"
	case FormatHTML:
		return "html"
	case FormatText:
		return "text"
	default:
		return "unknown"
	}
}

// DetectFormat detects the input format from magic bytes and content.
// Text is only reported when it resolves to an access key.
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return FormatPDF
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}),
		bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}),
		bytes.HasPrefix(data, []byte("GIF8")),
		bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}),
		bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}),
		qr.IsHEIC(data):
		return FormatImage
	}

	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<")) {
		switch sefaz.Classify(string(trimmed)) {
		case model.DocumentHTML:
			return FormatHTML
		default:
			return FormatXML
		}
	}

	if _, err := accesskey.Resolve(string(trimmed)); err == nil {
		return FormatText
	}
	return FormatUnknown
}

// DetectMimeType returns the MIME type used to load image inputs
func DetectMimeType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case qr.IsHEIC(data):
		return "image/heic"
	default:
		return http.DetectContentType(data)
	}
}

// Process dispatches data on its detected format. Saved XML/HTML bodies
// are parsed offline with key, which may be zero.
func (p *Pipeline) Process(ctx context.Context, data []byte, key model.AccessKey) *Result {
	switch DetectFormat(data) {
	case FormatImage, FormatPDF:
		return p.ProcessImage(ctx, data, DetectMimeType(data))
	case FormatXML:
		return p.ProcessDocument(ctx, &model.RawDocument{Kind: model.DocumentXML, Body: string(data), Key: key})
	case FormatHTML:
		return p.ProcessDocument(ctx, &model.RawDocument{Kind: model.DocumentHTML, Body: string(data), Key: key})
	default:
		return p.ProcessText(ctx, string(data))
	}
}
