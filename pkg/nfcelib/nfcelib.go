// Package nfcelib provides a public API for reading Brazilian NFC-e
// consumer receipts.
//
// A receipt photo, PDF or typed access key goes in; an InvoiceRecord with
// items, totals and payments in integer centavos comes out, or a typed
// failure that matches one of the exported sentinels through errors.Is.
//
// Example usage:
//
//	proc := nfcelib.NewDefaultProcessor()
//	res, err := proc.ProcessImage(ctx, photo, "image/jpeg")
//	if errors.Is(err, nfcelib.ErrQRNotFound) {
//	    // ask for a better photo
//	}
//	fmt.Println(res.Record.Totals.TotalCents)
package nfcelib

import (
	"github.com/rezonia/nfce-processor/internal/decimal"
	"github.com/rezonia/nfce-processor/internal/model"
)

// Re-export core types for public API
type (
	AccessKey      = model.AccessKey
	UF             = model.UF
	DecodedPayload = model.DecodedPayload
	DocumentKind   = model.DocumentKind
	RawDocument    = model.RawDocument
	InvoiceRecord  = model.InvoiceRecord
	InvoiceItem    = model.InvoiceItem
	InvoiceEmitter = model.InvoiceEmitter
	InvoiceTotals  = model.InvoiceTotals
	Address        = model.Address
	Recipient      = model.Recipient
	Payment        = model.Payment
)

// Re-export document kinds
const (
	DocumentUnrecognized = model.DocumentUnrecognized
	DocumentXML          = model.DocumentXML
	DocumentHTML         = model.DocumentHTML
)

// Re-export failure sentinels
var (
	ErrQRNotFound          = model.ErrQRNotFound
	ErrInvalidAccessKey    = model.ErrInvalidAccessKey
	ErrUnknownIssuingState = model.ErrUnknownIssuingState
	ErrNetwork             = model.ErrNetwork
	ErrUnparseableResponse = model.ErrUnparseableResponse
	ErrParse               = model.ErrParse
)

// Re-export error types
type (
	StageError      = model.StageError
	ParseError      = model.ParseError
	NetworkError    = model.NetworkError
	ValidationError = model.ValidationError
)

// ErrorKind returns a stable code for err, suitable for API responses
func ErrorKind(err error) string {
	return model.Kind(err)
}

// ParseCents normalizes a Brazilian currency string to centavos
func ParseCents(s string) (int64, error) {
	return decimal.ParseCents(s)
}

// FormatBRL renders centavos as "R$ 1.234,56"
func FormatBRL(cents int64) string {
	return decimal.FormatBRL(cents)
}
