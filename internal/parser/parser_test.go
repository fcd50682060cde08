package parser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/parser"
)

const testKey = "35240112345678000190650010000123451234567890"

const minimalXML = `<?xml version="1.0" encoding="UTF-8"?>
<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe35240112345678000190650010000123451234567890" versao="4.00">
    <det nItem="1"><prod><cProd>1</cProd><xProd>AGUA</xProd><uCom>UN</uCom><qCom>1.0000</qCom><vUnCom>2.50</vUnCom><vProd>2.50</vProd></prod></det>
    <total><ICMSTot><vProd>2.50</vProd><vNF>2.50</vNF></ICMSTot></total>
  </infNFe>
</NFe>`

const minimalHTML = `<html><body><table>
<tr id="Item + 1"><td><span class="txtTit">AGUA</span><span class="Rqtd"><strong>Qtde.:</strong>1</span><span class="valor">2,50</span></td></tr>
</table><div><label>Valor a pagar R$:</label><span class="totalNumb">2,50</span></div></body></html>`

type stubParser struct {
	kind model.DocumentKind
	rec  *model.InvoiceRecord
}

func (s *stubParser) Parse(ctx context.Context, doc *model.RawDocument) (*model.InvoiceRecord, error) {
	return s.rec, nil
}

func (s *stubParser) Kind() model.DocumentKind { return s.kind }

func TestRegistry_GetParser(t *testing.T) {
	r := parser.NewRegistry()

	require.NotNil(t, r.GetParser(model.DocumentXML))
	require.NotNil(t, r.GetParser(model.DocumentHTML))
	assert.Nil(t, r.GetParser(model.DocumentUnrecognized))
}

func TestRegistry_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		kind model.DocumentKind
		body string
	}{
		{"xml", model.DocumentXML, minimalXML},
		{"html", model.DocumentHTML, minimalHTML},
	}

	r := parser.NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := r.Parse(context.Background(), &model.RawDocument{
				Kind: tt.kind,
				Body: tt.body,
				Key:  model.MustAccessKey(testKey),
				UF:   "SP",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.kind, rec.Source)
			assert.Equal(t, int64(250), rec.Totals.TotalCents)
			require.Len(t, rec.Items, 1)
			assert.Equal(t, "AGUA", rec.Items[0].Description)
		})
	}
}

func TestRegistry_Unrecognized(t *testing.T) {
	r := parser.NewRegistry()

	rec, err := r.Parse(context.Background(), &model.RawDocument{
		Kind: model.DocumentUnrecognized,
		Body: "Service Unavailable",
	})
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, model.ErrUnparseableResponse)
	assert.NotErrorIs(t, err, model.ErrParse)
}

func TestRegistry_RegisterParserTakesPriority(t *testing.T) {
	r := parser.NewRegistry()
	want := &model.InvoiceRecord{DocumentNumber: "stub"}
	r.RegisterParser(&stubParser{kind: model.DocumentHTML, rec: want})

	rec, err := r.Parse(context.Background(), &model.RawDocument{Kind: model.DocumentHTML, Body: minimalHTML})
	require.NoError(t, err)
	assert.Same(t, want, rec)
}
