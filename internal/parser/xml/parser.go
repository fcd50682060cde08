// Package xml parses NF-e/NFC-e XML documents (nfeProc, NFe, NFCe).
package xml

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	dec "github.com/rezonia/nfce-processor/internal/decimal"
	"github.com/rezonia/nfce-processor/internal/model"
)

var logger = logrus.WithField("component", "parser.xml")

// Parser reads the fiscal XML layout. Element lookups ignore namespaces
// and accept a value either as an attribute or as a child element.
type Parser struct{}

// New creates a new XML parser
func New() *Parser {
	return &Parser{}
}

// Kind returns the document kind handled
func (p *Parser) Kind() model.DocumentKind {
	return model.DocumentXML
}

// Parse converts an XML document into a record
func (p *Parser) Parse(ctx context.Context, raw *model.RawDocument) (*model.InvoiceRecord, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	// Body is already UTF-8; the declared encoding is ignored
	doc.ReadSettings.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := doc.ReadFromString(raw.Body); err != nil {
		return nil, model.NewParseError(model.DocumentXML, "xml", "malformed document", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, model.NewParseError(model.DocumentXML, "xml", "document has no root element", nil)
	}

	inf := envelope(root)
	if inf == nil {
		return nil, model.NewParseError(model.DocumentXML, "infNFe", "no infNFe element found", nil)
	}

	rec := &model.InvoiceRecord{
		AccessKey: raw.Key,
		UF:        raw.UF,
		Source:    model.DocumentXML,
	}

	checkKey(rec, inf)
	parseIde(rec, child(inf, "ide"))
	parseEmitter(rec, child(inf, "emit"))
	parseRecipient(rec, child(inf, "dest"))

	for i, det := range children(inf, "det") {
		item, ok := parseItem(rec, det, i+1)
		if ok {
			rec.Items = append(rec.Items, item)
		}
	}
	if len(rec.Items) == 0 {
		return nil, model.NewParseError(model.DocumentXML, "det", "document has no items", nil)
	}

	parseTotals(rec, path(inf, "total", "ICMSTot"))
	parsePayments(rec, child(inf, "pag"))

	if prot := findDeep(root, "protNFe"); prot != nil {
		rec.Protocol = value(firstNonNil(child(prot, "infProt"), prot), "nProt")
	}

	return rec, nil
}

// envelope locates infNFe: nfeProc wrapper, then a bare NFe/NFCe root,
// then anywhere in the tree
func envelope(root *etree.Element) *etree.Element {
	switch {
	case is(root, "nfeProc", "nfceProc"):
		if nfe := child(root, "NFe", "NFCe"); nfe != nil {
			if inf := child(nfe, "infNFe", "infNFCe"); inf != nil {
				return inf
			}
		}
	case is(root, "NFe", "NFCe"):
		if inf := child(root, "infNFe", "infNFCe"); inf != nil {
			return inf
		}
	case is(root, "infNFe", "infNFCe"):
		return root
	}
	return findDeep(root, "infNFe", "infNFCe")
}

func checkKey(rec *model.InvoiceRecord, inf *etree.Element) {
	id := strings.TrimSpace(inf.SelectAttrValue("Id", ""))
	for _, prefix := range []string{"NFCe", "NFe"} {
		id = strings.TrimPrefix(id, prefix)
	}
	if id == "" {
		return
	}
	if rec.AccessKey.IsZero() {
		if key, err := model.NewAccessKey(id); err == nil {
			rec.AccessKey = key
		}
		return
	}
	if id != rec.AccessKey.String() {
		logger.WithFields(logrus.Fields{"key": rec.AccessKey.String(), "document_id": id}).
			Warn("document Id does not match access key")
		rec.Warn("document Id %s does not match access key", id)
	}
}

func parseIde(rec *model.InvoiceRecord, ide *etree.Element) {
	rec.DocumentNumber = value(ide, "nNF")
	rec.Series = value(ide, "serie")
	if rec.DocumentNumber == "" && !rec.AccessKey.IsZero() {
		rec.DocumentNumber = rec.AccessKey.Number()
	}
	if rec.Series == "" && !rec.AccessKey.IsZero() {
		rec.Series = rec.AccessKey.Series()
	}

	if s := value(ide, "dhEmi"); s != "" {
		if t, err := parseDate(s); err == nil {
			rec.IssueDate = t
			return
		}
		rec.Warn("unparseable dhEmi %q", s)
	}
	if s := value(ide, "dEmi"); s != "" {
		if t, err := parseDate(s); err == nil {
			rec.IssueDate = t
			return
		}
		rec.Warn("unparseable dEmi %q", s)
	}
	if !rec.AccessKey.IsZero() {
		if t, err := rec.AccessKey.IssueMonth(); err == nil {
			rec.IssueDate = t
		}
	}
}

func parseEmitter(rec *model.InvoiceRecord, emit *etree.Element) {
	rec.Issuer = model.InvoiceEmitter{
		TaxID:     firstValue(emit, "CNPJ", "CPF"),
		LegalName: value(emit, "xNome"),
		TradeName: value(emit, "xFant"),
	}
	if rec.Issuer.TaxID == "" && !rec.AccessKey.IsZero() {
		rec.Issuer.TaxID = rec.AccessKey.IssuerTaxID()
	}

	if addr := child(emit, "enderEmit"); addr != nil {
		rec.Issuer.Address = &model.Address{
			Street:     value(addr, "xLgr"),
			Number:     value(addr, "nro"),
			Complement: value(addr, "xCpl"),
			District:   value(addr, "xBairro"),
			City:       value(addr, "xMun"),
			State:      value(addr, "UF"),
			PostalCode: value(addr, "CEP"),
		}
	}
}

func parseRecipient(rec *model.InvoiceRecord, dest *etree.Element) {
	if dest == nil {
		return
	}
	r := &model.Recipient{
		TaxID: firstValue(dest, "CNPJ", "CPF", "idEstrangeiro"),
		Name:  value(dest, "xNome"),
	}
	if r.TaxID != "" || r.Name != "" {
		rec.Recipient = r
	}
}

func parseItem(rec *model.InvoiceRecord, det *etree.Element, index int) (model.InvoiceItem, bool) {
	item := model.InvoiceItem{Number: index}
	if n, err := strconv.Atoi(value(det, "nItem")); err == nil && n > 0 {
		item.Number = n
	}

	prod := firstNonNil(child(det, "prod"), det)
	item.Code = value(prod, "cProd")
	item.Description = value(prod, "xProd")
	item.Unit = value(prod, "uCom")

	if item.Description == "" {
		rec.Warn("item %d dropped: missing description", item.Number)
		return item, false
	}

	qty, err := dec.ParseDecimal(value(prod, "qCom"))
	if err != nil || !qty.IsPositive() {
		rec.Warn("item %d dropped: invalid quantity %q", item.Number, value(prod, "qCom"))
		return item, false
	}
	item.Quantity = qty

	if cents, ok := amount(rec, prod, "vUnCom"); ok {
		item.UnitPriceCents = cents
	}
	if cents, ok := amount(rec, prod, "vProd"); ok {
		item.TotalCents = cents
	}
	item.Calculate()
	return item, true
}

func parseTotals(rec *model.InvoiceRecord, tot *etree.Element) {
	sum := rec.ItemsCents()

	if cents, ok := amount(rec, tot, "vProd"); ok {
		rec.Totals.ProductsCents = cents
	} else {
		rec.Totals.ProductsCents = sum
	}
	if cents, ok := amount(rec, tot, "vDesc"); ok {
		rec.Totals.DiscountCents = model.Cents(cents)
	}
	if cents, ok := amount(rec, tot, "vFrete"); ok {
		rec.Totals.FreightCents = model.Cents(cents)
	}
	if cents, ok := amount(rec, tot, "vTotTrib"); ok {
		rec.Totals.TaxCents = model.Cents(cents)
	} else if cents, ok := amount(rec, tot, "vICMS"); ok {
		rec.Totals.TaxCents = model.Cents(cents)
	}

	if cents, ok := amount(rec, tot, "vNF"); ok {
		rec.Totals.TotalCents = cents
		return
	}
	rec.Totals.TotalCents = sum
	rec.Warn("vNF missing, total computed from items")
}

var paymentMethods = map[string]string{
	"01": "cash",
	"02": "check",
	"03": "credit_card",
	"04": "debit_card",
	"05": "store_credit",
	"10": "food_voucher",
	"11": "meal_voucher",
	"12": "gift_voucher",
	"13": "fuel_voucher",
	"15": "bank_slip",
	"16": "bank_deposit",
	"17": "pix",
	"18": "bank_transfer",
	"19": "loyalty",
	"90": "none",
	"99": "other",
}

func parsePayments(rec *model.InvoiceRecord, pag *etree.Element) {
	if pag == nil {
		return
	}
	entries := children(pag, "detPag")
	if len(entries) == 0 {
		// pre-4.00 layout keeps tPag/vPag directly under pag
		entries = []*etree.Element{pag}
	}
	for _, e := range entries {
		code := value(e, "tPag")
		cents, ok := amount(rec, e, "vPag")
		if code == "" && !ok {
			continue
		}
		method, known := paymentMethods[code]
		if !known {
			method = code
		}
		rec.Payments = append(rec.Payments, model.Payment{Method: method, AmountCents: cents})
	}
}

// amount reads a machine-formatted monetary field. XML amounts always use
// a dot and may carry up to ten decimals.
func amount(rec *model.InvoiceRecord, e *etree.Element, name string) (int64, bool) {
	s := value(e, name)
	if s == "" {
		return 0, false
	}
	d, err := dec.ParseDecimal(s)
	if err != nil {
		rec.Warn("invalid amount in %s: %q", name, s)
		return 0, false
	}
	return dec.ToCents(d), true
}

func parseDate(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
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

// Element helpers

func is(e *etree.Element, names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(e.Tag, n) {
			return true
		}
	}
	return false
}

func child(e *etree.Element, names ...string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if is(c, names...) {
			return c
		}
	}
	return nil
}

func children(e *etree.Element, name string) []*etree.Element {
	if e == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if is(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func path(e *etree.Element, names ...string) *etree.Element {
	for _, n := range names {
		e = child(e, n)
	}
	return e
}

func findDeep(e *etree.Element, names ...string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if is(c, names...) {
			return c
		}
		if found := findDeep(c, names...); found != nil {
			return found
		}
	}
	return nil
}

// value returns the attribute name of e, else the text of its child name
func value(e *etree.Element, name string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attr {
		if strings.EqualFold(a.Key, name) {
			return strings.TrimSpace(a.Value)
		}
	}
	if c := child(e, name); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func firstValue(e *etree.Element, names ...string) string {
	for _, n := range names {
		if v := value(e, n); v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(elems ...*etree.Element) *etree.Element {
	for _, e := range elems {
		if e != nil {
			return e
		}
	}
	return nil
}
