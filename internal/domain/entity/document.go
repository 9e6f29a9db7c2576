package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento fiscal. Cada tipo numera en su propio espacio de series.
const (
	DocTypeInvoice      = "FACTURA"
	DocTypeDeliveryNote = "ALBARAN"
	DocTypeBudget       = "PRESUPUESTO"
	DocTypeBill         = "FACTURA_PROVEEDOR"
)

// Estados del ciclo de vida. DRAFT es el único estado mutable; la transición
// DRAFT → PENDING es la emisión (asigna número y huella) y es irreversible.
const (
	StatusDraft   = "DRAFT"
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
)

// ValidDocType indica si el tipo de documento es uno de los soportados.
func ValidDocType(t string) bool {
	switch t {
	case DocTypeInvoice, DocTypeDeliveryNote, DocTypeBudget, DocTypeBill:
		return true
	}
	return false
}

// ServiceLine es una línea de servicio/concepto del documento.
type ServiceLine struct {
	ID          string
	DocumentID  string
	Concept     string
	Quantity    decimal.Decimal
	UnitAmount  decimal.Decimal // base imponible unitaria
	DiscountPct decimal.Decimal // 0-100
	TaxPct      decimal.Decimal // 0-100 (IVA)
	LineTotal   decimal.Decimal // derivado: cantidad × unitario − dto + IVA
}

// ComputeTotal recalcula el total de la línea a partir de sus campos.
func (l *ServiceLine) ComputeTotal() decimal.Decimal {
	gross := l.Quantity.Mul(l.UnitAmount)
	discount := gross.Mul(l.DiscountPct).Div(decimal.NewFromInt(100))
	base := gross.Sub(discount)
	tax := base.Mul(l.TaxPct).Div(decimal.NewFromInt(100))
	return base.Add(tax)
}

// TaxAmount devuelve la cuota de IVA de la línea.
func (l *ServiceLine) TaxAmount() decimal.Decimal {
	gross := l.Quantity.Mul(l.UnitAmount)
	base := gross.Sub(gross.Mul(l.DiscountPct).Div(decimal.NewFromInt(100)))
	return base.Mul(l.TaxPct).Div(decimal.NewFromInt(100))
}

// Document es la cabecera de un documento fiscal (factura, albarán,
// presupuesto o factura de proveedor). Mientras está en DRAFT los campos
// SeriesCode/Number/ChainDigest están sin asignar; la emisión los fija de
// forma atómica y a partir de ahí son write-once.
type Document struct {
	ID           string
	OwnerID      string // usuario propietario (del token)
	DocumentType string
	SeriesCode   string // serie fiscal (ej. "A", "X"); vacío en borrador
	FiscalYear   int
	Number       int64 // 0 mientras DRAFT; consecutivo denso desde 1
	Status       string
	ClientName   string
	ClientNIF    string
	IssueDate    time.Time
	DueDate      time.Time
	Lines        []*ServiceLine
	TaxTotal     decimal.Decimal // cuota total de IVA (derivado)
	TotalAmount  decimal.Decimal // importe total (derivado)
	ChainDigest  string          // huella SHA-256 hex mayúsculas; vacío en DRAFT
	PrevDigest   string          // huella del documento anterior de la serie ("" si número 1)
	FinalizedAt  time.Time       // sello temporal que entró en la huella; cero en DRAFT
	Deleted      bool            // borrado lógico; el número sigue consumido
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsDraft indica si el documento sigue siendo editable.
func (d *Document) IsDraft() bool { return d.Status == StatusDraft }

// RecomputeTotals recalcula LineTotal de cada línea y los totales de la
// cabecera. Debe llamarse en cada mutación de líneas; nunca sobre un
// documento emitido.
func (d *Document) RecomputeTotals() {
	var total, tax decimal.Decimal
	for _, l := range d.Lines {
		l.LineTotal = l.ComputeTotal()
		total = total.Add(l.LineTotal)
		tax = tax.Add(l.TaxAmount())
	}
	d.TotalAmount = total
	d.TaxTotal = tax
}

// CanFinalize comprueba los requisitos fiscales para emitir: identidad del
// cliente, serie declarada y al menos una línea. No muta estado.
func (d *Document) CanFinalize() bool {
	if !d.IsDraft() || d.Deleted {
		return false
	}
	if d.ClientName == "" || d.ClientNIF == "" {
		return false
	}
	if d.SeriesCode == "" || !ValidDocType(d.DocumentType) {
		return false
	}
	return len(d.Lines) > 0
}

// Series devuelve la clave de serie fiscal del documento.
func (d *Document) Series() FiscalSeries {
	return FiscalSeries{
		DocumentType: d.DocumentType,
		SeriesCode:   d.SeriesCode,
		FiscalYear:   d.FiscalYear,
	}
}
