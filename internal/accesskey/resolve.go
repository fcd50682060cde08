// Package accesskey extracts the 44-digit chave de acesso from QR payloads
// and maps it to the issuing state.
package accesskey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rezonia/nfce-processor/internal/model"
)

// queryParams are checked in order when the payload is a URL
var queryParams = []string{"p", "chNFe", "chave", "chaveNFe"}

// Resolve extracts an access key from a QR payload or manually typed text.
// URLs are searched through known query parameters, then path segments.
// Anything else has its non-digits stripped and must leave exactly 44 digits.
func Resolve(input string) (model.AccessKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return model.AccessKey{}, fmt.Errorf("%w: empty input", model.ErrInvalidAccessKey)
	}

	if u, ok := parseURL(input); ok {
		if key, found := fromURL(u); found {
			return key, nil
		}
	}

	digits := onlyDigits(input)
	if len(digits) != model.AccessKeyLength {
		return model.AccessKey{}, fmt.Errorf("%w: found %d digits", model.ErrInvalidAccessKey, len(digits))
	}
	return model.NewAccessKey(digits)
}

// Decode records what a payload contains without failing
func Decode(raw string) model.DecodedPayload {
	payload := model.DecodedPayload{RawText: raw}
	if u, ok := parseURL(strings.TrimSpace(raw)); ok {
		payload.URL = u.String()
	}
	if key, err := Resolve(raw); err == nil {
		payload.AccessKey = &key
	}
	return payload
}

func parseURL(s string) (*url.URL, bool) {
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	return u, true
}

func fromURL(u *url.URL) (model.AccessKey, bool) {
	q := u.Query()
	for _, name := range queryParams {
		for _, v := range q[name] {
			// NFC-e QR v2 packs key|version|env|...|hash into p
			first, _, _ := strings.Cut(v, "|")
			if key, ok := candidate(first); ok {
				return key, true
			}
		}
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if key, ok := candidate(seg); ok {
			return key, true
		}
	}
	return model.AccessKey{}, false
}

func candidate(s string) (model.AccessKey, bool) {
	digits := onlyDigits(s)
	if len(digits) != model.AccessKeyLength {
		return model.AccessKey{}, false
	}
	key, err := model.NewAccessKey(digits)
	return key, err == nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
