package submission_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-pro/internal/application/submission"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

func finalizedDoc() *entity.Document {
	doc := &entity.Document{
		ID:           "doc-1",
		OwnerID:      "owner-1",
		DocumentType: entity.DocTypeInvoice,
		SeriesCode:   "A",
		FiscalYear:   2025,
		Number:       7,
		Status:       entity.StatusPending,
		ClientName:   "Cliente Demo SL",
		ClientNIF:    "B87654321",
		IssueDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines: []*entity.ServiceLine{{
			Concept:    "Consultoría",
			Quantity:   decimal.NewFromInt(10),
			UnitAmount: decimal.NewFromInt(100),
			TaxPct:     decimal.NewFromInt(21),
		}},
		ChainDigest: strings.Repeat("A", 64),
		PrevDigest:  strings.Repeat("B", 64),
		FinalizedAt: time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
	}
	doc.RecomputeTotals()
	return doc
}

// El payload es determinista: el mismo documento produce siempre exactamente
// los mismos bytes, condición para que el remoto deduplique reenvíos.
func TestPayloadEncoder_Determinista(t *testing.T) {
	enc := submission.NewPayloadEncoder("B12345678")
	doc := finalizedDoc()

	first, err := enc.Encode(doc)
	require.NoError(t, err)
	second, err := enc.Encode(doc)
	require.NoError(t, err)

	assert.Equal(t, first, second, "dos codificaciones del mismo documento deben ser byte a byte idénticas")
}

func TestPayloadEncoder_ContenidoFiscal(t *testing.T) {
	enc := submission.NewPayloadEncoder("B12345678")
	doc := finalizedDoc()

	payload, err := enc.Encode(doc)
	require.NoError(t, err)

	assert.Contains(t, payload, "<IDEmisorFactura>B12345678</IDEmisorFactura>")
	assert.Contains(t, payload, "<NumSerieFactura>A7</NumSerieFactura>",
		"serie y número van concatenados")
	assert.Contains(t, payload, "<FechaExpedicionFactura>2025-03-01</FechaExpedicionFactura>")
	assert.Contains(t, payload, "<CuotaTotal>210.00</CuotaTotal>")
	assert.Contains(t, payload, "<ImporteTotal>1210.00</ImporteTotal>")
	assert.Contains(t, payload, "<Huella>"+doc.ChainDigest+"</Huella>")
	assert.Contains(t, payload, "<HuellaAnterior>"+doc.PrevDigest+"</HuellaAnterior>")
}

// Solo se codifican documentos emitidos: el payload se deriva de estado
// inmutable, nunca de un borrador.
func TestPayloadEncoder_RechazaBorrador(t *testing.T) {
	enc := submission.NewPayloadEncoder("B12345678")
	doc := finalizedDoc()
	doc.Number = 0
	doc.ChainDigest = ""

	_, err := enc.Encode(doc)
	assert.Error(t, err)
}

func TestPayloadEncoder_RechazaNil(t *testing.T) {
	enc := submission.NewPayloadEncoder("B12345678")
	_, err := enc.Encode(nil)
	assert.Error(t, err)
}
