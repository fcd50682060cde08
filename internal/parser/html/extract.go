package html

import (
	"regexp"
	"strconv"
)

// extractor pulls one field out of a fragment
type extractor func(string) (string, bool)

// first runs the chain in order and returns the first non-empty match
func first(chain []extractor, s string) (string, bool) {
	for _, ex := range chain {
		if v, ok := ex(s); ok {
			return v, true
		}
	}
	return "", false
}

// markup matches against raw HTML; group 1 is cleaned
func markup(pattern string) extractor {
	re := regexp.MustCompile(pattern)
	return func(s string) (string, bool) {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return "", false
		}
		v := cleanText(m[1])
		return v, v != ""
	}
}

// text matches against the cleaned text of the fragment
func text(pattern string) extractor {
	re := regexp.MustCompile(pattern)
	return func(s string) (string, bool) {
		m := re.FindStringSubmatch(cleanText(s))
		if m == nil {
			return "", false
		}
		v := cleanText(m[1])
		return v, v != ""
	}
}

// row is one item row found by a locator
type row struct {
	number int
	html   string
}

type rowLocator func(string) []row

// numbered finds rows whose id carries the item number in group 1 and the
// row body in group 2
func numbered(pattern string) rowLocator {
	re := regexp.MustCompile(pattern)
	return func(s string) []row {
		var rows []row
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				n = len(rows) + 1
			}
			rows = append(rows, row{number: n, html: m[2]})
		}
		return rows
	}
}

// sequential finds rows by a marker and numbers them in document order
func sequential(pattern string) rowLocator {
	re := regexp.MustCompile(pattern)
	return func(s string) []row {
		var rows []row
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			rows = append(rows, row{number: len(rows) + 1, html: m[1]})
		}
		return rows
	}
}

const amountRe = `(?:R\$)?\s*(-?[\d.,]*\d)`

// Ordered from the national SP layout to older table layouts. New state
// quirks go at the end of each list.
var (
	rowLocators = []rowLocator{
		numbered(`(?is)<tr[^>]*\bid\s*=\s*["']Item\s*\+\s*(\d+)["'][^>]*>(.*?)</tr>`),
		numbered(`(?is)<tr[^>]*\bid\s*=\s*["']Item[-_ ]?(\d+)["'][^>]*>(.*?)</tr>`),
		sequential(`(?is)<tr[^>]*\bclass\s*=\s*["'][^"']*\bitem\b[^"']*["'][^>]*>(.*?)</tr>`),
	}

	itemDescription = []extractor{
		markup(`(?is)<span[^>]*class\s*=\s*["']txtTit2?["'][^>]*>(.*?)</span>`),
		markup(`(?is)<td[^>]*class\s*=\s*["']NFCDetalhe_Item["'][^>]*>(.*?)</td>`),
		markup(`(?is)<[a-z]+[^>]*class\s*=\s*["'][^"']*\b(?:fixo-prod-serv-descricao|descricao|prod-desc)\b[^"']*["'][^>]*>(.*?)</[a-z]+>`),
		text(`^(.+?)\s*\(\s*C[óo]digo`),
	}

	itemCode = []extractor{
		text(`(?i)\(\s*C[óo]digo\s*:\s*([^)\s]+)\s*\)`),
		text(`(?i)C[óo]d(?:igo)?\.?\s*:\s*([A-Za-z0-9./-]+)`),
	}

	itemQuantity = []extractor{
		markup(`(?is)<span[^>]*class\s*=\s*["']Rqtd["'][^>]*>(?:\s*<strong>[^<]*</strong>)?\s*([^<]*)</span>`),
		text(`(?i)Qtde?\.?\s*:\s*([\d.,]+)`),
		text(`(?i)Quantidade\s*:?\s*([\d.,]+)`),
	}

	itemUnit = []extractor{
		markup(`(?is)<span[^>]*class\s*=\s*["']RUN["'][^>]*>(?:\s*<strong>[^<]*</strong>)?\s*([^<]*)</span>`),
		text(`\b(?:UN|Un|Unid\.?)\s*:\s*([A-Za-z]{1,6})\b`),
	}

	itemUnitPrice = []extractor{
		markup(`(?is)<span[^>]*class\s*=\s*["']RvlUnit["'][^>]*>(?:\s*<strong>[^<]*</strong>)?\s*([^<]*)</span>`),
		text(`(?i)Vl\.?\s*Unit(?:\.|ário)?\s*:?\s*` + amountRe),
	}

	itemTotal = []extractor{
		markup(`(?is)<span[^>]*class\s*=\s*["']valor["'][^>]*>([^<]*)</span>`),
		text(`(?i)Vl\.?\s*Total\s*:?\s*` + amountRe),
		text(`(?i)Valor\s+Total\s*:?\s*` + amountRe),
	}

	totalLabel = `(?:Valor\s+a\s+pagar|Total\s+a\s+pagar|Valor\s+total\s+da\s+nota)`

	documentTotal = []extractor{
		markup(`(?is)Valor\s+a\s+pagar\s*(?:R\$)?\s*:?\s*</label>\s*<span[^>]*class\s*=\s*["'][^"']*totalNumb[^"']*["'][^>]*>([^<]*)</span>`),
		markup(`(?is)` + totalLabel + `[^<]*(?:</[a-z]+>\s*)*<strong[^>]*>([^<]*)</strong>`),
		markup(`(?is)` + totalLabel + `[^<]*</td>\s*<td[^>]*>([^<]*)</td>`),
		text(`(?i)` + totalLabel + `\s*(?:R\$)?\s*:?\s*` + amountRe),
	}

	documentProducts = []extractor{
		markup(`(?is)Valor\s+total\s*R\$\s*:?\s*</label>\s*<span[^>]*>([^<]*)</span>`),
		text(`(?i)Valor\s+total\s+R\$\s*:?\s*([\d.,]*\d)`),
	}

	documentDiscount = []extractor{
		markup(`(?is)Descontos?\s*(?:R\$)?\s*:?\s*</label>\s*<span[^>]*>([^<]*)</span>`),
		text(`(?i)Descontos?\s*R\$\s*:?\s*([\d.,]*\d)`),
	}

	issuerName = []extractor{
		markup(`(?is)<div[^>]*class\s*=\s*["']txtTopo["'][^>]*>(.*?)</div>`),
		markup(`(?is)<td[^>]*class\s*=\s*["']NFCCabecalho_SubTitulo["'][^>]*>(.*?)</td>`),
	}

	documentNumber = []extractor{
		text(`(?i)N[úu]mero\s*:\s*(\d+)`),
	}

	documentSeries = []extractor{
		text(`(?i)S[ée]rie\s*:\s*(\d+)`),
	}

	documentIssued = []extractor{
		text(`(?i)(?:Emiss[ãa]o|Data\s+de\s+Emiss[ãa]o)\s*:\s*(\d{2}/\d{2}/\d{4}(?:\s+\d{2}:\d{2}(?::\d{2})?)?)`),
	}

	documentProtocol = []extractor{
		text(`(?i)Protocolo\s+de\s+Autoriza[çc][ãa]o\s*:\s*(\d+)`),
	}

	consumerTaxID = []extractor{
		markup(`(?is)<strong>\s*CPF\s*:\s*</strong>\s*([^<]*)`),
		markup(`(?is)Consumidor.*?<strong>\s*CNPJ\s*:\s*</strong>\s*([^<]*)`),
		text(`(?i)CONSUMIDOR\s+CPF\s*:\s*([\d.\-]+)`),
	}

	consumerName = []extractor{
		markup(`(?is)<strong>\s*Nome\s*:\s*</strong>\s*([^<]*)`),
	}

	paymentRows = regexp.MustCompile(`(?is)<label[^>]*class\s*=\s*["']tx["'][^>]*>(.*?)</label>\s*<span[^>]*class\s*=\s*["']totalNumb["'][^>]*>([^<]*)</span>`)

	taxIDPattern = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}\s*/?\s*\d{4}\s*-?\s*\d{2}`)
)
