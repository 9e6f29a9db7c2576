package submission

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/ucarion/c14n"
)

// Namespace del registro de facturación enviado a la agencia.
const nsRegistro = "urn:es:agencia:verifactu:RegistroFactura:1.0"

// PayloadEncoder serializa un documento emitido al XML canónico de envío.
// El orden de los elementos es fijo y la salida pasa por canonicalización
// C14N, así el mismo documento produce siempre exactamente los mismos bytes
// y el endpoint remoto puede deduplicar reenvíos por serie+número o huella.
type PayloadEncoder struct {
	issuerNIF string
}

// NewPayloadEncoder construye el encoder con el NIF del emisor.
func NewPayloadEncoder(issuerNIF string) *PayloadEncoder {
	return &PayloadEncoder{issuerNIF: issuerNIF}
}

// Encode genera el payload canónico. Solo admite documentos ya emitidos: el
// payload se deriva exclusivamente de estado persistido e inmutable.
func (e *PayloadEncoder) Encode(doc *entity.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("payload: documento es obligatorio")
	}
	if doc.Number < 1 || doc.ChainDigest == "" {
		return "", fmt.Errorf("payload: el documento %s no está emitido", doc.ID)
	}

	x := etree.NewDocument()
	root := x.CreateElement("RegistroFactura")
	root.CreateAttr("xmlns", nsRegistro)

	root.CreateElement("IDEmisorFactura").SetText(e.issuerNIF)
	root.CreateElement("TipoFactura").SetText(doc.DocumentType)
	root.CreateElement("NumSerieFactura").SetText(fmt.Sprintf("%s%d", doc.SeriesCode, doc.Number))
	root.CreateElement("EjercicioFiscal").SetText(fmt.Sprintf("%d", doc.FiscalYear))
	root.CreateElement("FechaExpedicionFactura").SetText(doc.IssueDate.Format("2006-01-02"))
	root.CreateElement("NombreDestinatario").SetText(doc.ClientName)
	root.CreateElement("NIFDestinatario").SetText(doc.ClientNIF)

	lines := root.CreateElement("Lineas")
	var baseTotal decimal.Decimal
	for _, l := range doc.Lines {
		gross := l.Quantity.Mul(l.UnitAmount)
		base := gross.Sub(gross.Mul(l.DiscountPct).Div(decimal.NewFromInt(100)))
		baseTotal = baseTotal.Add(base)

		le := lines.CreateElement("Linea")
		le.CreateElement("Concepto").SetText(l.Concept)
		le.CreateElement("Cantidad").SetText(l.Quantity.String())
		le.CreateElement("PrecioUnitario").SetText(amount(l.UnitAmount))
		le.CreateElement("TipoIVA").SetText(amount(l.TaxPct))
		le.CreateElement("ImporteLinea").SetText(amount(l.LineTotal))
	}

	desglose := root.CreateElement("Desglose")
	desglose.CreateElement("BaseImponible").SetText(amount(baseTotal))
	desglose.CreateElement("CuotaTotal").SetText(amount(doc.TaxTotal))
	root.CreateElement("ImporteTotal").SetText(amount(doc.TotalAmount))
	root.CreateElement("Huella").SetText(doc.ChainDigest)
	root.CreateElement("HuellaAnterior").SetText(doc.PrevDigest)

	raw, err := x.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("payload: serializar XML: %w", err)
	}
	canonical, err := canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("payload: canonicalizar XML: %w", err)
	}
	return string(canonical), nil
}

// canonicalize aplica C14N al XML para una forma byte a byte reproducible.
func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// amount formatea montos del payload: punto decimal, 2 decimales.
func amount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
