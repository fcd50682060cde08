package decimal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// ParseCents converts a displayed amount into integer cents.
//
// Rules, in order:
//   - "R$" and all whitespace (including NBSP) are removed
//   - a comma marks Brazilian format: dots are thousands, comma is decimal
//   - a single dot followed by exactly two digits is a decimal point
//   - any other dots are thousands separators and the value is whole units
//   - bare digits: three or more means the last two are cents, otherwise
//     the value is whole units
func ParseCents(s string) (int64, error) {
	clean := stripCurrency(s)
	if clean == "" {
		return 0, fmt.Errorf("empty amount %q", s)
	}
	neg := false
	if clean[0] == '-' {
		neg = true
		clean = clean[1:]
	}
	if clean == "" || !validAmountChars(clean) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	var cents int64
	switch {
	case strings.Contains(clean, ","):
		d, err := parseBrazilian(clean)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		cents = ToCents(d)
	case strings.Count(clean, ".") == 1 && len(clean)-strings.Index(clean, ".")-1 == 2:
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		cents = ToCents(d)
	case strings.Contains(clean, "."):
		units, err := decimal.NewFromString(strings.ReplaceAll(clean, ".", ""))
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		cents = units.Mul(hundred).IntPart()
	default:
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		if len(clean) >= 3 {
			cents = d.IntPart()
		} else {
			cents = d.Mul(hundred).IntPart()
		}
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

// ParseDecimal parses quantities and machine-formatted amounts, accepting
// either a comma or a dot as the decimal separator. With a comma present,
// dots are treated as thousands separators.
func ParseDecimal(s string) (decimal.Decimal, error) {
	clean := stripCurrency(s)
	if clean == "" {
		return Zero, fmt.Errorf("empty number %q", s)
	}
	if strings.Contains(clean, ",") {
		return parseBrazilian(clean)
	}
	return decimal.NewFromString(clean)
}

// ToCents converts a currency amount to cents, rounding half away from zero
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// LineTotalCents computes unit price times quantity, rounded to the cent
func LineTotalCents(unitCents int64, qty decimal.Decimal) int64 {
	return decimal.NewFromInt(unitCents).Mul(qty).Round(0).IntPart()
}

// FormatBRL renders cents as "R$ 1.234,56"
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	units := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), cents%100)
}

func parseBrazilian(s string) (decimal.Decimal, error) {
	if strings.Count(s, ",") > 1 {
		return Zero, fmt.Errorf("multiple decimal commas in %q", s)
	}
	s = strings.ReplaceAll(s, ".", "")
	return decimal.NewFromString(strings.Replace(s, ",", ".", 1))
}

func stripCurrency(s string) string {
	s = strings.ReplaceAll(s, "R$", "")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0', '\u202f', '\u2007':
			return -1
		}
		return r
	}, s)
}

func validAmountChars(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}
