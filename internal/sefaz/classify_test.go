package sefaz_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

var _ = DescribeTable("Classify",
	func(body string, want model.DocumentKind) {
		Expect(sefaz.Classify(body)).To(Equal(want))
	},
	Entry("xml prolog", `<?xml version="1.0"?><nfeProc/>`, model.DocumentXML),
	Entry("xml prolog with unknown root", `<?xml version="1.0"?><retConsSitNFe/>`, model.DocumentXML),
	Entry("bare nfeProc root", `<nfeProc versao="4.00" xmlns="http://www.portalfiscal.inf.br/nfe"><NFe/></nfeProc>`, model.DocumentXML),
	Entry("bare NFe root", `<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe/></NFe>`, model.DocumentXML),
	Entry("bare NFCe root", "\n  <NFCe><infNFCe/></NFCe>", model.DocumentXML),
	Entry("byte order mark", "\ufeff<?xml version=\"1.0\"?><NFe/>", model.DocumentXML),
	Entry("doctype", `<!DOCTYPE html><html><body/></html>`, model.DocumentHTML),
	Entry("lowercase doctype", `<!doctype html><title>x</title>`, model.DocumentHTML),
	Entry("html without doctype", `<html lang="pt-br"><body></body></html>`, model.DocumentHTML),
	Entry("html with leading comment", `<!-- portal --><HTML><BODY></BODY></HTML>`, model.DocumentHTML),
	Entry("xhtml with xml prolog", `<?xml version="1.0" encoding="UTF-8"?><!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0//EN"><html xmlns="http://www.w3.org/1999/xhtml"></html>`, model.DocumentHTML),
	Entry("json", `{"status":"error"}`, model.DocumentUnrecognized),
	Entry("plain text", `Servico indisponivel`, model.DocumentUnrecognized),
	Entry("empty", "", model.DocumentUnrecognized),
	Entry("whitespace", " \n\t", model.DocumentUnrecognized),
)

var _ = Describe("URLs", func() {
	key := model.MustAccessKey(testKey)

	It("should append the key to both endpoints", func() {
		direct, consult, err := sefaz.URLs("SP", key)
		Expect(err).NotTo(HaveOccurred())
		Expect(direct).To(Equal("https://www.nfce.fazenda.sp.gov.br/NFCeConsultaPublica/Paginas/ConsultaQRCode.aspx?p=" + testKey))
		Expect(consult).To(HavePrefix("https://www.nfce.fazenda.sp.gov.br/NFCeConsultaPublica/Paginas/ConsultaPublica.aspx?p="))
	})

	It("should use an ampersand when the endpoint has a query", func() {
		table := sefaz.Table{"RS": {Direct: "https://example.gov.br/nfce?tp=1"}}
		direct, consult, err := table.URLs("RS", key)
		Expect(err).NotTo(HaveOccurred())
		Expect(direct).To(Equal("https://example.gov.br/nfce?tp=1&p=" + testKey))
		Expect(consult).To(BeEmpty())
	})

	It("should cover every state", func() {
		Expect(sefaz.DefaultEndpoints).To(HaveLen(27))
		for uf, ep := range sefaz.DefaultEndpoints {
			Expect(ep.Direct).To(HavePrefix("http"), string(uf))
			Expect(ep.Consult).To(HavePrefix("http"), string(uf))
		}
	})

	It("should reject unknown states", func() {
		_, _, err := sefaz.URLs("XX", key)
		Expect(err).To(MatchError(model.ErrUnknownIssuingState))
	})
})
