package server

import (
	"github.com/rezonia/nfce-processor/internal/model"
)

// ScanTextRequest is the JSON body of the scan/text endpoint
type ScanTextRequest struct {
	Text string `json:"text" binding:"required"`
}

// ProcessResponse is the response for scan and parse endpoints
type ProcessResponse struct {
	Record   *model.InvoiceRecord  `json:"record"`
	Payload  *model.DecodedPayload `json:"payload,omitempty"`
	Method   string                `json:"method"`
	Warnings []string              `json:"warnings,omitempty"`
}

// ValidationResponse is the response for validate endpoint
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// KeyInfoResponse describes an access key without fetching anything
type KeyInfoResponse struct {
	Key          string   `json:"key"`
	UF           model.UF `json:"uf"`
	StateCode    string   `json:"state_code"`
	IssuerTaxID  string   `json:"issuer_tax_id"`
	Model        string   `json:"model"`
	Series       string   `json:"series"`
	Number       string   `json:"number"`
	EmissionType string   `json:"emission_type"`
	CheckDigit   string   `json:"check_digit"`
	IssueMonth   string   `json:"issue_month,omitempty"`
	DirectURL    string   `json:"direct_url,omitempty"`
	ConsultURL   string   `json:"consult_url,omitempty"`
}

// StateResponse is one supported issuing state
type StateResponse struct {
	UF         model.UF `json:"uf"`
	Code       string   `json:"code"`
	DirectURL  string   `json:"direct_url,omitempty"`
	ConsultURL string   `json:"consult_url,omitempty"`
}

// StatesResponse lists the states in IBGE code order
type StatesResponse struct {
	States []StateResponse `json:"states"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Kind     string   `json:"kind,omitempty"`
	Stage    string   `json:"stage,omitempty"`
	Details  string   `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
