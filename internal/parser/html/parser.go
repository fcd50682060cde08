// Package html extracts invoice data from the consumer-facing portal pages.
// Layouts differ per state and change without notice, so every field is
// read through an ordered list of extractors.
package html

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	dec "github.com/rezonia/nfce-processor/internal/decimal"
	"github.com/rezonia/nfce-processor/internal/model"
)

var logger = logrus.WithField("component", "parser.html")

// issuerWindow bounds the search after the CNPJ label
const issuerWindow = 800

// Parser reads portal HTML
type Parser struct{}

// New creates a new HTML parser
func New() *Parser {
	return &Parser{}
}

// Kind returns the document kind handled
func (p *Parser) Kind() model.DocumentKind {
	return model.DocumentHTML
}

// Parse converts a portal page into a record
func (p *Parser) Parse(ctx context.Context, raw *model.RawDocument) (*model.InvoiceRecord, error) {
	body := stripNoise(raw.Body)

	rec := &model.InvoiceRecord{
		AccessKey: raw.Key,
		UF:        raw.UF,
		Source:    model.DocumentHTML,
	}

	for _, r := range locateRows(body) {
		if item, ok := parseRow(rec, r); ok {
			rec.Items = append(rec.Items, item)
		}
	}
	if len(rec.Items) == 0 {
		return nil, model.NewParseError(model.DocumentHTML, "items", "no item rows found", nil)
	}

	parseIssuer(rec, body)
	parseHeader(rec, body)
	parseConsumer(rec, body)
	parseTotals(rec, body)
	parsePayments(rec, body)

	if len(rec.Warnings) > 0 {
		logger.WithFields(logrus.Fields{"key": rec.AccessKey.String(), "warnings": len(rec.Warnings)}).
			Debug("parsed with warnings")
	}
	return rec, nil
}

// locateRows returns the rows of the first locator that finds any
func locateRows(body string) []row {
	for _, locate := range rowLocators {
		if rows := locate(body); len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func parseRow(rec *model.InvoiceRecord, r row) (model.InvoiceItem, bool) {
	item := model.InvoiceItem{Number: r.number}

	desc, ok := first(itemDescription, r.html)
	if !ok {
		rec.Warn("item %d dropped: missing description", r.number)
		return item, false
	}
	item.Description = desc
	item.Code, _ = first(itemCode, r.html)
	item.Unit, _ = first(itemUnit, r.html)

	qtyText, ok := first(itemQuantity, r.html)
	if !ok {
		rec.Warn("item %d dropped: missing quantity", r.number)
		return item, false
	}
	qty, err := dec.ParseDecimal(qtyText)
	if err != nil || !qty.IsPositive() {
		rec.Warn("item %d dropped: invalid quantity %q", r.number, qtyText)
		return item, false
	}
	item.Quantity = qty

	if s, ok := first(itemUnitPrice, r.html); ok {
		if cents, err := dec.ParseCents(s); err == nil {
			item.UnitPriceCents = cents
		}
	}
	if s, ok := first(itemTotal, r.html); ok {
		if cents, err := dec.ParseCents(s); err == nil {
			item.TotalCents = cents
		}
	}
	if item.UnitPriceCents == 0 && item.TotalCents != 0 {
		item.UnitPriceCents = decimal.NewFromInt(item.TotalCents).Div(item.Quantity).Round(0).IntPart()
	}
	item.Calculate()
	return item, true
}

func parseIssuer(rec *model.InvoiceRecord, body string) {
	idx := strings.Index(body, "CNPJ:")
	if name, ok := first(issuerName, body); ok {
		rec.Issuer.LegalName = name
	} else if idx > 0 {
		if segs := segments(body[:idx]); len(segs) > 0 {
			rec.Issuer.LegalName = segs[len(segs)-1]
		}
	}

	if idx >= 0 {
		end := idx + issuerWindow
		if end > len(body) {
			end = len(body)
		}
		window := body[idx:end]
		if m := taxIDPattern.FindString(window); m != "" {
			rec.Issuer.TaxID = onlyDigits(m)
		}
		if addr := issuerAddress(segments(window)); addr != "" {
			rec.Issuer.Address = splitAddress(addr)
		}
	}

	if rec.Issuer.TaxID == "" && !rec.AccessKey.IsZero() {
		rec.Issuer.TaxID = rec.AccessKey.IssuerTaxID()
	}
}

// issuerAddress returns the first text node after the CNPJ that is not
// itself a label or tax id
func issuerAddress(segs []string) string {
	for i, s := range segs {
		if i == 0 || strings.HasSuffix(s, ":") {
			continue
		}
		if taxIDPattern.ReplaceAllString(s, "") == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(s), "inscri") {
			continue
		}
		return s
	}
	return ""
}

// splitAddress keeps the raw line and picks City and State from the tail
func splitAddress(raw string) *model.Address {
	addr := &model.Address{Raw: raw}
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if n := len(parts); n >= 2 && len(parts[n-1]) == 2 && strings.ToUpper(parts[n-1]) == parts[n-1] {
		addr.State = parts[n-1]
		addr.City = parts[n-2]
		if n >= 3 {
			addr.Street = parts[0]
		}
	}
	return addr
}

func parseHeader(rec *model.InvoiceRecord, body string) {
	rec.DocumentNumber, _ = first(documentNumber, body)
	rec.Series, _ = first(documentSeries, body)
	rec.Protocol, _ = first(documentProtocol, body)

	if s, ok := first(documentIssued, body); ok {
		if t, err := parseDate(s); err == nil {
			rec.IssueDate = t
		} else {
			rec.Warn("unparseable issue date %q", s)
		}
	}

	if rec.AccessKey.IsZero() {
		return
	}
	if rec.DocumentNumber == "" {
		rec.DocumentNumber = rec.AccessKey.Number()
	}
	if rec.Series == "" {
		rec.Series = rec.AccessKey.Series()
	}
	if rec.IssueDate.IsZero() {
		if t, err := rec.AccessKey.IssueMonth(); err == nil {
			rec.IssueDate = t
		}
	}
}

func parseConsumer(rec *model.InvoiceRecord, body string) {
	taxID, _ := first(consumerTaxID, body)
	name, _ := first(consumerName, body)
	taxID = onlyDigits(taxID)
	if taxID == "" && name == "" {
		return
	}
	rec.Recipient = &model.Recipient{TaxID: taxID, Name: name}
}

func parseTotals(rec *model.InvoiceRecord, body string) {
	sum := rec.ItemsCents()

	rec.Totals.ProductsCents = sum
	if s, ok := first(documentProducts, body); ok {
		if cents, err := dec.ParseCents(s); err == nil {
			rec.Totals.ProductsCents = cents
		}
	}
	if s, ok := first(documentDiscount, body); ok {
		if cents, err := dec.ParseCents(s); err == nil {
			rec.Totals.DiscountCents = model.Cents(cents)
		}
	}

	if s, ok := first(documentTotal, body); ok {
		if cents, err := dec.ParseCents(s); err == nil {
			rec.Totals.TotalCents = cents
			return
		}
		rec.Warn("unparseable document total %q", s)
	}
	rec.Totals.TotalCents = sum
	rec.Warn("document total not found, using sum of items")
}

var paymentLabels = map[string]string{
	"dinheiro":               "cash",
	"cheque":                 "check",
	"cartão de crédito":      "credit_card",
	"cartao de credito":      "credit_card",
	"cartão de débito":       "debit_card",
	"cartao de debito":       "debit_card",
	"crédito loja":           "store_credit",
	"vale alimentação":       "food_voucher",
	"vale refeição":          "meal_voucher",
	"vale presente":          "gift_voucher",
	"vale combustível":       "fuel_voucher",
	"boleto bancário":        "bank_slip",
	"depósito bancário":      "bank_deposit",
	"pix":                    "pix",
	"transferência bancária": "bank_transfer",
	"sem pagamento":          "none",
	"outros":                 "other",
}

func parsePayments(rec *model.InvoiceRecord, body string) {
	for _, m := range paymentRows.FindAllStringSubmatch(body, -1) {
		label := cleanText(m[1])
		cents, err := dec.ParseCents(cleanText(m[2]))
		if label == "" || err != nil {
			continue
		}
		method, ok := paymentLabels[strings.ToLower(label)]
		switch {
		case ok:
		case strings.Contains(strings.ToLower(label), "pix"):
			method = "pix"
		default:
			method = strings.ToLower(label)
		}
		rec.Payments = append(rec.Payments, model.Payment{Method: method, AmountCents: cents})
	}
}

func parseDate(s string) (time.Time, error) {
	layouts := []string{
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"02/01/2006",
	}
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, model.BrasiliaTime); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
