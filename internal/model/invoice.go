package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	dec "github.com/rezonia/nfce-processor/internal/decimal"
)

// DocumentKind is the classification of a fetched body
type DocumentKind int

const (
	DocumentUnrecognized DocumentKind = iota
	DocumentXML
	DocumentHTML
)

func (k DocumentKind) String() string {
	switch k {
	case DocumentXML:
		return "xml"
	case DocumentHTML:
		return "html"
	case DocumentUnrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("DocumentKind(%d)", int(k))
	}
}

func (k DocumentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DocumentKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "xml":
		*k = DocumentXML
	case "html":
		*k = DocumentHTML
	case "unrecognized", "":
		*k = DocumentUnrecognized
	default:
		return fmt.Errorf("unknown document kind %q", b)
	}
	return nil
}

// RawDocument is a classified response body from a state portal
type RawDocument struct {
	Kind DocumentKind
	Body string
	URL  string
	Key  AccessKey
	UF   UF
}

// InvoiceItem represents a single purchased line
type InvoiceItem struct {
	Number         int             `json:"number"`
	Code           string          `json:"code,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit,omitempty"`
	UnitPriceCents int64           `json:"unit_price_cents"`
	TotalCents     int64           `json:"total_cents"`
}

// Calculate fills TotalCents from unit price and quantity when the source
// carried no line total. An explicit total is left untouched.
func (i *InvoiceItem) Calculate() {
	if i.TotalCents != 0 {
		return
	}
	i.TotalCents = dec.LineTotalCents(i.UnitPriceCents, i.Quantity)
}

// Address is the issuer location. HTML sources only fill Raw and a
// best-effort City/State.
type Address struct {
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

// String joins the known parts, or returns Raw
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	if a.Raw != "" {
		return a.Raw
	}
	s := a.Street
	if a.Number != "" {
		s += ", " + a.Number
	}
	if a.District != "" {
		s += ", " + a.District
	}
	if a.City != "" {
		s += ", " + a.City
	}
	if a.State != "" {
		s += ", " + a.State
	}
	return s
}

// InvoiceEmitter is the issuing business
type InvoiceEmitter struct {
	TaxID     string   `json:"tax_id"`
	LegalName string   `json:"legal_name"`
	TradeName string   `json:"trade_name,omitempty"`
	Address   *Address `json:"address,omitempty"`
}

// Recipient is the consumer, when identified
type Recipient struct {
	TaxID string `json:"tax_id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// InvoiceTotals holds document-level amounts in cents
type InvoiceTotals struct {
	ProductsCents int64  `json:"products_cents"`
	DiscountCents *int64 `json:"discount_cents,omitempty"`
	FreightCents  *int64 `json:"freight_cents,omitempty"`
	TaxCents      *int64 `json:"tax_cents,omitempty"`
	TotalCents    int64  `json:"total_cents"`
}

// Cents returns a pointer to v, for the optional totals
func Cents(v int64) *int64 {
	return &v
}

// Payment is one detPag entry
type Payment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

// InvoiceRecord is the normalized output of a successful parse
type InvoiceRecord struct {
	AccessKey      AccessKey      `json:"access_key"`
	DocumentNumber string         `json:"document_number"`
	Series         string         `json:"series"`
	IssueDate      time.Time      `json:"issue_date"`
	Issuer         InvoiceEmitter `json:"issuer"`
	Recipient      *Recipient     `json:"recipient,omitempty"`
	Items          []InvoiceItem  `json:"items"`
	Totals         InvoiceTotals  `json:"totals"`
	UF             UF             `json:"uf"`
	Source         DocumentKind   `json:"source"`
	Protocol       string         `json:"protocol,omitempty"`
	Payments       []Payment      `json:"payments,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// ItemsCents sums the line totals
func (r *InvoiceRecord) ItemsCents() int64 {
	var sum int64
	for _, it := range r.Items {
		sum += it.TotalCents
	}
	return sum
}

// Warn appends a non-fatal note
func (r *InvoiceRecord) Warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks record invariants
func (r *InvoiceRecord) Validate() error {
	if len(r.Items) == 0 {
		return NewValidationError("Items", nil, "required", "at least one item")
	}
	for _, it := range r.Items {
		if !it.Quantity.IsPositive() {
			return NewValidationError(fmt.Sprintf("Items[%d].Quantity", it.Number), it.Quantity.String(), "positive", "quantity must be greater than zero")
		}
		if it.Description == "" {
			return NewValidationError(fmt.Sprintf("Items[%d].Description", it.Number), nil, "required", "description is empty")
		}
	}
	if r.Totals.DiscountCents != nil {
		floor := r.Totals.ProductsCents - *r.Totals.DiscountCents
		if r.Totals.TotalCents < floor {
			return NewValidationError("Totals.TotalCents", r.Totals.TotalCents, "min", fmt.Sprintf("total below products minus discount (%d)", floor))
		}
	}
	return nil
}
