package sefaz

import (
	"fmt"
	"strings"

	"github.com/rezonia/nfce-processor/internal/model"
)

// Endpoints holds the two public lookup pages for one state. Direct is the
// QR landing page; Consult is the manual access-key query.
type Endpoints struct {
	Direct  string
	Consult string
}

// Table maps each state to its endpoints
type Table map[model.UF]Endpoints

// DefaultEndpoints is the public NFC-e portal table. Several states share a
// national layout; addresses drift, so overrides go through WithEndpoints.
var DefaultEndpoints = Table{
	"AC": {"http://www.sefaznet.ac.gov.br/nfce/qrcode", "http://www.sefaznet.ac.gov.br/nfce/consulta"},
	"AL": {"http://nfce.sefaz.al.gov.br/QRCode/consultarNFCe.jsp", "http://nfce.sefaz.al.gov.br/consultaNFCe.htm"},
	"AM": {"https://sistemas.sefaz.am.gov.br/nfceweb/consultarNFCe.jsp", "https://sistemas.sefaz.am.gov.br/nfceweb/formConsulta.do"},
	"AP": {"https://www.sefaz.ap.gov.br/nfce/nfcep.php", "https://www.sefaz.ap.gov.br/sate/seg/SEGf_AcessarFuncao.jsp"},
	"BA": {"http://nfe.sefaz.ba.gov.br/servicos/nfce/qrcode.aspx", "http://nfe.sefaz.ba.gov.br/servicos/nfce/modulos/geral/NFCEC_consulta_chave_acesso.aspx"},
	"CE": {"http://nfce.sefaz.ce.gov.br/pages/ShowNFCe.html", "http://nfce.sefaz.ce.gov.br/pages/consultaChaveAcesso.jsf"},
	"DF": {"http://www.fazenda.df.gov.br/nfce/qrcode", "http://www.fazenda.df.gov.br/nfce/consulta"},
	"ES": {"http://app.sefaz.es.gov.br/ConsultaNFCe/qrcode.aspx", "http://app.sefaz.es.gov.br/ConsultaNFCe"},
	"GO": {"https://nfeweb.sefaz.go.gov.br/nfeweb/sites/nfce/danfeNFCe", "https://nfeweb.sefaz.go.gov.br/nfeweb/sites/nfe/consulta-completa"},
	"MA": {"http://nfce.sefaz.ma.gov.br/portal/consultarNFCe.jsp", "http://nfce.sefaz.ma.gov.br/portal/consultaNFe.do"},
	"MG": {"https://portalsped.fazenda.mg.gov.br/portalnfce/sistema/qrcode.xhtml", "https://portalsped.fazenda.mg.gov.br/portalnfce/sistema/consultaarg.xhtml"},
	"MS": {"http://www.dfe.ms.gov.br/nfce/qrcode", "http://www.dfe.ms.gov.br/nfce/consulta"},
	"MT": {"http://www.sefaz.mt.gov.br/nfce/consultanfce", "http://www.sefaz.mt.gov.br/nfce/consultanfce"},
	"PA": {"https://appnfc.sefa.pa.gov.br/portal/view/consultas/nfce/nfceForm.seam", "https://appnfc.sefa.pa.gov.br/portal/view/consultas/nfce/consultanfce.seam"},
	"PB": {"http://www.sefaz.pb.gov.br/nfce", "https://www.sefaz.pb.gov.br/nfce/consulta"},
	"PE": {"http://nfce.sefaz.pe.gov.br/nfce/consulta", "http://nfce.sefaz.pe.gov.br/nfce-web/consultarNFCe"},
	"PI": {"http://www.sefaz.pi.gov.br/nfce/qrcode", "http://www.sefaz.pi.gov.br/nfce/consulta"},
	"PR": {"http://www.fazenda.pr.gov.br/nfce/qrcode", "http://www.fazenda.pr.gov.br/nfce/consulta"},
	"RJ": {"https://consultadfe.fazenda.rj.gov.br/consultaNFCe/QRCode", "https://consultadfe.fazenda.rj.gov.br/consultaDFe/paginas/consultaChaveAcesso.faces"},
	"RN": {"http://nfce.set.rn.gov.br/consultarNFCe.aspx", "http://nfce.set.rn.gov.br/portalDFE/NFCe/ConsultaNFCe.aspx"},
	"RO": {"http://www.nfce.sefin.ro.gov.br/consultanfce/consulta.jsp", "http://www.nfce.sefin.ro.gov.br/consultaAmbProducao.jsp"},
	"RR": {"https://www.sefaz.rr.gov.br/servlet/qrcode", "https://www.sefaz.rr.gov.br/nfce/servlet/wp_consulta_nfce"},
	"RS": {"https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx", "https://www.sefaz.rs.gov.br/NFE/NFE-COM.aspx"},
	"SC": {"https://sat.sef.sc.gov.br/nfce/consulta", "https://sat.sef.sc.gov.br/tax.NET/Sat.NFe.Web/Consultas/ConsultaPublicaNFCe.aspx"},
	"SE": {"http://www.nfce.se.gov.br/nfce/qrcode", "http://www.nfce.se.gov.br/portal/portalNoticias.jsp"},
	"SP": {"https://www.nfce.fazenda.sp.gov.br/NFCeConsultaPublica/Paginas/ConsultaQRCode.aspx", "https://www.nfce.fazenda.sp.gov.br/NFCeConsultaPublica/Paginas/ConsultaPublica.aspx"},
	"TO": {"http://www.sefaz.to.gov.br/nfce/qrcode", "http://www.sefaz.to.gov.br/nfce/consulta"},
}

// Lookup returns the endpoints for uf
func (t Table) Lookup(uf model.UF) (Endpoints, error) {
	ep, ok := t[uf]
	if !ok || ep.Direct == "" {
		return Endpoints{}, fmt.Errorf("%w: no endpoint for %q", model.ErrUnknownIssuingState, uf)
	}
	return ep, nil
}

// URLs returns the direct and consult request URLs for key in uf
func URLs(uf model.UF, key model.AccessKey) (direct, consult string, err error) {
	return DefaultEndpoints.URLs(uf, key)
}

// URLs returns the direct and consult request URLs for key in uf
func (t Table) URLs(uf model.UF, key model.AccessKey) (direct, consult string, err error) {
	ep, err := t.Lookup(uf)
	if err != nil {
		return "", "", err
	}
	direct = withKey(ep.Direct, key)
	if ep.Consult != "" {
		consult = withKey(ep.Consult, key)
	}
	return direct, consult, nil
}

func withKey(base string, key model.AccessKey) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "p=" + key.String()
}
