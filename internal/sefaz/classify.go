package sefaz

import (
	"regexp"
	"strings"

	"github.com/rezonia/nfce-processor/internal/model"
)

// Roots of a fiscal document, with or without a namespace prefix
var (
	nfeRootStart = regexp.MustCompile(`^<(?:[A-Za-z0-9_]+:)?(?:nfeProc|NFe|NFCe|nfceProc)[\s>/]`)
	nfeRootAny   = regexp.MustCompile(`<(?:[A-Za-z0-9_]+:)?(?:nfeProc|NFe|NFCe|infNFe|infNFCe)[\s>/]`)
)

// Classify decides how a body should be parsed from its content alone.
// Content-Type headers are not consulted.
//
// A body starting with an XML prolog is XML, except XHTML: a prolog
// followed by HTML markup and no NF-e root element is classified as HTML.
func Classify(body string) model.DocumentKind {
	trimmed := strings.TrimLeft(body, "\ufeff \t\r\n")
	if trimmed == "" {
		return model.DocumentUnrecognized
	}
	lower := strings.ToLower(trimmed)
	htmlMarkup := strings.HasPrefix(lower, "<!doctype html") || strings.Contains(lower, "<html")

	switch {
	case strings.HasPrefix(trimmed, "<?xml"):
		// XHTML pages carry a prolog too
		if htmlMarkup && !nfeRootAny.MatchString(trimmed) {
			return model.DocumentHTML
		}
		return model.DocumentXML
	case nfeRootStart.MatchString(trimmed):
		return model.DocumentXML
	case strings.HasPrefix(lower, "<!doctype"), htmlMarkup:
		return model.DocumentHTML
	default:
		return model.DocumentUnrecognized
	}
}
