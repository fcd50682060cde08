package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AccessKeyLength is the number of digits in a chave de acesso
const AccessKeyLength = 44

// UF is a two-letter Brazilian state code
type UF string

// Document models embedded in the access key
const (
	ModelNFe  = "55"
	ModelNFCe = "65"
)

// AccessKey is a validated 44-digit access key. The zero value is invalid.
type AccessKey struct {
	digits string
}

// NewAccessKey validates digits, which must be exactly 44 ASCII digits.
// It does not strip anything; see accesskey.Resolve for lenient input.
func NewAccessKey(digits string) (AccessKey, error) {
	if len(digits) != AccessKeyLength {
		return AccessKey{}, fmt.Errorf("%w: expected %d digits, got %d", ErrInvalidAccessKey, AccessKeyLength, len(digits))
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return AccessKey{}, fmt.Errorf("%w: non-digit at position %d", ErrInvalidAccessKey, i)
		}
	}
	return AccessKey{digits: digits}, nil
}

// MustAccessKey is NewAccessKey that panics, for tests and constants
func MustAccessKey(digits string) AccessKey {
	k, err := NewAccessKey(digits)
	if err != nil {
		panic(err)
	}
	return k
}

func (k AccessKey) String() string { return k.digits }

// IsZero reports whether k was never validated
func (k AccessKey) IsZero() bool { return k.digits == "" }

// StateCode returns the two-digit IBGE state code (cUF)
func (k AccessKey) StateCode() string { return k.slice(0, 2) }

// IssuerTaxID returns the issuer CNPJ embedded in the key
func (k AccessKey) IssuerTaxID() string { return k.slice(6, 20) }

// Model returns "55" for NF-e or "65" for NFC-e
func (k AccessKey) Model() string { return k.slice(20, 22) }

// Series returns the document series without leading zeros
func (k AccessKey) Series() string { return trimZeros(k.slice(22, 25)) }

// Number returns the document number without leading zeros
func (k AccessKey) Number() string { return trimZeros(k.slice(25, 34)) }

// EmissionType returns the tpEmis digit
func (k AccessKey) EmissionType() string { return k.slice(34, 35) }

// CheckDigit returns the last digit. It is not verified.
func (k AccessKey) CheckDigit() string { return k.slice(43, 44) }

// IssueMonth returns the first day of the AAMM month embedded in the key
func (k AccessKey) IssueMonth() (time.Time, error) {
	yy, err := strconv.Atoi(k.slice(2, 4))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad year", ErrInvalidAccessKey)
	}
	mm, err := strconv.Atoi(k.slice(4, 6))
	if err != nil || mm < 1 || mm > 12 {
		return time.Time{}, fmt.Errorf("%w: bad month", ErrInvalidAccessKey)
	}
	return time.Date(2000+yy, time.Month(mm), 1, 0, 0, 0, 0, BrasiliaTime), nil
}

func (k AccessKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.digits)
}

func (k *AccessKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*k = AccessKey{}
		return nil
	}
	parsed, err := NewAccessKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k AccessKey) slice(from, to int) string {
	if len(k.digits) < to {
		return ""
	}
	return k.digits[from:to]
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

// BrasiliaTime is UTC-3, used when a source omits the offset
var BrasiliaTime = time.FixedZone("BRT", -3*60*60)

// DecodedPayload is the QR payload before key validation is finalized
type DecodedPayload struct {
	RawText   string     `json:"raw_text"`
	URL       string     `json:"url,omitempty"`
	AccessKey *AccessKey `json:"access_key,omitempty"`
}
