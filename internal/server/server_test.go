package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	goqrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/processor"
	"github.com/rezonia/nfce-processor/internal/server"
)

const testKey = "35240112345678000190650010000123451234567890"

const xmlBody = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc versao="4.00"><NFe><infNFe Id="NFe` + testKey + `" versao="4.00">
  <ide><nNF>12345</nNF><serie>1</serie><dhEmi>2024-01-15T10:30:00-03:00</dhEmi></ide>
  <emit><CNPJ>12345678000190</CNPJ><xNome>SUPERMERCADO BOM PRECO LTDA</xNome></emit>
  <det nItem="1"><prod><cProd>1</cProd><xProd>LEITE INTEGRAL 1L</xProd><uCom>UN</uCom><qCom>2</qCom><vUnCom>4.99</vUnCom><vProd>9.98</vProd></prod></det>
  <total><ICMSTot><vProd>9.98</vProd><vNF>9.98</vNF></ICMSTot></total>
</infNFe></NFe></nfeProc>`

type stubFetcher struct {
	doc   *model.RawDocument
	err   error
	calls atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, key model.AccessKey, uf model.UF) (*model.RawDocument, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.Key = key
	doc.UF = uf
	return &doc, nil
}

func newTestServer(f *stubFetcher) *server.Server {
	config := &server.Config{
		Address: ":8080",
		Debug:   true,
	}
	return server.NewServer(config, processor.NewPipeline(processor.WithFetcher(f)))
}

func xmlFetcher() *stubFetcher {
	return &stubFetcher{doc: &model.RawDocument{Kind: model.DocumentXML, Body: xmlBody}}
}

func serve(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
	assert.NotEmpty(t, response["time"])
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = serve(srv, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestScanTextEndpoint(t *testing.T) {
	f := xmlFetcher()
	srv := newTestServer(f)

	body := `{"text":"https://www.nfce.fazenda.sp.gov.br/qrcode?p=` + testKey + `|2|1|1|ABC"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := serve(srv, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response server.ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "text", response.Method)
	require.NotNil(t, response.Record)
	assert.Equal(t, testKey, response.Record.AccessKey.String())
	assert.Equal(t, "12345", response.Record.DocumentNumber)
	assert.Equal(t, int64(998), response.Record.Totals.TotalCents)
	assert.Equal(t, model.DocumentXML, response.Record.Source)
	require.NotNil(t, response.Payload)
	assert.Contains(t, response.Payload.URL, "nfce.fazenda.sp.gov.br")
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestScanTextEndpoint_PlainBody(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(testKey))
	req.Header.Set("Content-Type", "text/plain")
	w := serve(srv, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScanTextEndpoint_MissingText(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(srv, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanTextEndpoint_Failures(t *testing.T) {
	timeout := fmt.Errorf("%w: direct: %w", model.ErrNetwork,
		&model.NetworkError{URL: "https://example", Cause: context.DeadlineExceeded})

	tests := []struct {
		name    string
		text    string
		fetcher *stubFetcher
		status  int
		kind    string
		stage   string
	}{
		{
			name:    "invalid key",
			text:    "12345",
			fetcher: xmlFetcher(),
			status:  http.StatusBadRequest,
			kind:    "invalid_access_key",
			stage:   "access_key",
		},
		{
			name:    "unknown state",
			text:    "99" + testKey[2:],
			fetcher: xmlFetcher(),
			status:  http.StatusBadRequest,
			kind:    "unknown_issuing_state",
			stage:   "uf",
		},
		{
			name:    "network",
			text:    testKey,
			fetcher: &stubFetcher{err: &model.NetworkError{URL: "https://example", StatusCode: 503}},
			status:  http.StatusBadGateway,
			kind:    "network_error",
			stage:   "fetch",
		},
		{
			name:    "timeout",
			text:    testKey,
			fetcher: &stubFetcher{err: timeout},
			status:  http.StatusGatewayTimeout,
			kind:    "network_error",
			stage:   "fetch",
		},
		{
			name:    "unparseable",
			text:    testKey,
			fetcher: &stubFetcher{doc: &model.RawDocument{Kind: model.DocumentUnrecognized, Body: "oops"}},
			status:  http.StatusBadGateway,
			kind:    "unparseable_response",
			stage:   "classify",
		},
		{
			name:    "parse",
			text:    testKey,
			fetcher: &stubFetcher{doc: &model.RawDocument{Kind: model.DocumentHTML, Body: "<html></html>"}},
			status:  http.StatusUnprocessableEntity,
			kind:    "parse_error",
			stage:   "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.fetcher)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(tt.text))
			w := serve(srv, req)
			assert.Equal(t, tt.status, w.Code)

			var response server.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.kind, response.Kind)
			assert.Equal(t, tt.stage, response.Stage)
			assert.NotEmpty(t, response.Error)
		})
	}
}

func TestScanImageEndpoint(t *testing.T) {
	f := xmlFetcher()
	srv := newTestServer(f)

	img, err := goqrcode.Encode("https://www.nfce.fazenda.sp.gov.br/qrcode?p="+testKey+"|2|1|1|ABC", goqrcode.Medium, 400)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", bytes.NewReader(img))
	req.Header.Set("Content-Type", "image/png")
	w := serve(srv, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response server.ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "qr", response.Method)
}

func TestScanImageEndpoint_NoQR(t *testing.T) {
	f := xmlFetcher()
	srv := newTestServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", strings.NewReader("not an image"))
	w := serve(srv, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "qr_not_found")
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestScanImageEndpoint_EmptyBody(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanImageEndpoint_BodyTooLarge(t *testing.T) {
	f := xmlFetcher()
	config := &server.Config{Address: ":8080", Debug: true, MaxBodyBytes: 16}
	srv := server.NewServer(config, processor.NewPipeline(processor.WithFetcher(f)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", bytes.NewReader(make([]byte, 64)))
	w := serve(srv, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestParseEndpoint(t *testing.T) {
	f := xmlFetcher()
	srv := newTestServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parse?key="+testKey, strings.NewReader(xmlBody))
	w := serve(srv, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response server.ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "document", response.Method)
	assert.Equal(t, model.UF("SP"), response.Record.UF)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestParseEndpoint_InvalidKey(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parse?key=123", strings.NewReader(xmlBody))
	w := serve(srv, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader(xmlBody)))
	require.Equal(t, http.StatusOK, w.Code)

	var response server.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Valid)
	assert.Empty(t, response.Errors)
}

func TestValidateEndpoint_Unparseable(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader("plain words")))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var response server.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Valid)
}

func TestKeyInfoEndpoint(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/keys/"+testKey, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response server.KeyInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, testKey, response.Key)
	assert.Equal(t, model.UF("SP"), response.UF)
	assert.Equal(t, "35", response.StateCode)
	assert.Equal(t, "12345678000190", response.IssuerTaxID)
	assert.Equal(t, "65", response.Model)
	assert.Equal(t, "1", response.Series)
	assert.Equal(t, "12345", response.Number)
	assert.Equal(t, "2024-01", response.IssueMonth)
	assert.Contains(t, response.DirectURL, "p="+testKey)
}

func TestStatesEndpoint(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/states", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response server.StatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.States, 27)
	assert.Equal(t, model.UF("RO"), response.States[0].UF)
	assert.Equal(t, "11", response.States[0].Code)

	var sp server.StateResponse
	for _, st := range response.States {
		if st.UF == "SP" {
			sp = st
		}
	}
	assert.Equal(t, "35", sp.Code)
	assert.Contains(t, sp.DirectURL, "fazenda.sp.gov.br")
}

func TestKeyInfoEndpoint_Invalid(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/keys/123", http.StatusBadRequest},
		{"/api/v1/keys/99" + testKey[2:], http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := serve(srv, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.status, w.Code, tt.path)
	}
}

func TestKeyQREndpoint(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/keys/"+testKey+"/qr?size=200", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestKeyQREndpoint_BadSize(t *testing.T) {
	srv := newTestServer(xmlFetcher())

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/keys/"+testKey+"/qr?size=9999", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
