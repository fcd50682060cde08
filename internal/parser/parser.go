// Package parser turns a classified RawDocument into an InvoiceRecord.
package parser

import (
	"context"
	"fmt"

	"github.com/rezonia/nfce-processor/internal/model"
	htmlparser "github.com/rezonia/nfce-processor/internal/parser/html"
	xmlparser "github.com/rezonia/nfce-processor/internal/parser/xml"
)

// Parser handles one DocumentKind
type Parser interface {
	// Parse converts the document into a record
	Parse(ctx context.Context, doc *model.RawDocument) (*model.InvoiceRecord, error)

	// Kind returns the document kind handled
	Kind() model.DocumentKind
}

// Registry holds one parser per document kind
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry with the XML and HTML parsers
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			xmlparser.New(),
			htmlparser.New(),
		},
	}
}

// RegisterParser adds a parser; it takes priority over existing ones of
// the same kind
func (r *Registry) RegisterParser(p Parser) {
	r.parsers = append([]Parser{p}, r.parsers...)
}

// GetParser returns the parser for kind, or nil
func (r *Registry) GetParser(kind model.DocumentKind) Parser {
	for _, p := range r.parsers {
		if p.Kind() == kind {
			return p
		}
	}
	return nil
}

// Parse dispatches doc to the parser for its kind
func (r *Registry) Parse(ctx context.Context, doc *model.RawDocument) (*model.InvoiceRecord, error) {
	switch doc.Kind {
	case model.DocumentXML, model.DocumentHTML:
		p := r.GetParser(doc.Kind)
		if p == nil {
			return nil, model.NewParseError(doc.Kind, "kind", "no parser registered", nil)
		}
		return p.Parse(ctx, doc)
	case model.DocumentUnrecognized:
		return nil, fmt.Errorf("%w: body is neither XML nor HTML", model.ErrUnparseableResponse)
	default:
		return nil, fmt.Errorf("%w: unknown document kind %s", model.ErrUnparseableResponse, doc.Kind)
	}
}
