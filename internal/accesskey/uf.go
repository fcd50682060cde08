package accesskey

import (
	"fmt"
	"sort"

	"github.com/rezonia/nfce-processor/internal/model"
)

// IBGE state codes
var states = map[string]model.UF{
	"11": "RO", "12": "AC", "13": "AM", "14": "RR", "15": "PA", "16": "AP", "17": "TO",
	"21": "MA", "22": "PI", "23": "CE", "24": "RN", "25": "PB", "26": "PE", "27": "AL", "28": "SE", "29": "BA",
	"31": "MG", "32": "ES", "33": "RJ", "35": "SP",
	"41": "PR", "42": "SC", "43": "RS",
	"50": "MS", "51": "MT", "52": "GO", "53": "DF",
}

var codes = func() map[model.UF]string {
	m := make(map[model.UF]string, len(states))
	for code, uf := range states {
		m[uf] = code
	}
	return m
}()

// ResolveUF returns the issuing state from the first two digits of key
func ResolveUF(key model.AccessKey) (model.UF, error) {
	code := key.StateCode()
	uf, ok := states[code]
	if !ok {
		return "", fmt.Errorf("%w: state code %q", model.ErrUnknownIssuingState, code)
	}
	return uf, nil
}

// StateCode returns the IBGE code for uf
func StateCode(uf model.UF) (string, bool) {
	code, ok := codes[uf]
	return code, ok
}

// States lists all known states ordered by code
func States() []model.UF {
	keys := make([]string, 0, len(states))
	for code := range states {
		keys = append(keys, code)
	}
	sort.Strings(keys)
	out := make([]model.UF, len(keys))
	for i, code := range keys {
		out[i] = states[code]
	}
	return out
}
