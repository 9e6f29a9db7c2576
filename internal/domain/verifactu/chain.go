// Package verifactu: cálculo de la huella encadenada de registros de
// facturación al estilo del sistema VERI*FACTU (RD 1007/2023).
// Algoritmo: SHA-256 sobre una cadena canónica key=value& en orden fijo.
// La huella de cada documento incorpora la del anterior de su serie, de modo
// que cualquier edición o borrado retroactivo rompe la cadena al recomputar.

package verifactu

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Formato de fecha y de sello temporal en la cadena canónica.
const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05-07:00"
)

// ChainParams contiene los campos fiscales que entran en la huella, en el
// orden exigido por la cadena canónica.
type ChainParams struct {
	IssuerID     string          // NIF del emisor
	SeriesCode   string          // serie fiscal (ej. "A")
	Number       int64           // consecutivo dentro de la serie
	IssueDate    time.Time       // fecha de expedición
	DocumentType string          // tipo de documento (TipoFactura)
	TaxTotal     decimal.Decimal // cuota total de IVA
	TotalAmount  decimal.Decimal // importe total
	PrevDigest   string          // huella del documento anterior ("" si es el primero)
	GeneratedAt  time.Time       // fecha-hora con huso de generación del registro
}

// Hasher construye la cadena canónica y su huella SHA-256.
type Hasher struct{}

// NewHasher crea el servicio. No guarda estado: Digest es una función pura.
func NewHasher() *Hasher {
	return &Hasher{}
}

// CanonicalString serializa los campos fiscales en la codificación canónica
// key=value&key=value con orden de campos fijo. La re-serialización desde los
// mismos inputs es reproducible byte a byte; de ahí que la verificación de la
// cadena pueda recomputar huellas años después.
func (h *Hasher) CanonicalString(p *ChainParams) (string, error) {
	if p == nil {
		return "", fmt.Errorf("verifactu: ChainParams es obligatorio")
	}
	if strings.TrimSpace(p.IssuerID) == "" {
		return "", fmt.Errorf("verifactu: IssuerID es obligatorio para la huella")
	}
	if p.SeriesCode == "" || p.Number < 1 {
		return "", fmt.Errorf("verifactu: serie y número válidos son obligatorios")
	}
	if p.IssueDate.IsZero() || p.GeneratedAt.IsZero() {
		return "", fmt.Errorf("verifactu: fechas de expedición y generación son obligatorias")
	}

	// Orden estricto de campos; NumSerieFactura concatena serie y número.
	cadena := "IDEmisorFactura=" + strings.TrimSpace(p.IssuerID) +
		"&NumSerieFactura=" + fmt.Sprintf("%s%d", p.SeriesCode, p.Number) +
		"&FechaExpedicionFactura=" + p.IssueDate.Format(dateLayout) +
		"&TipoFactura=" + p.DocumentType +
		"&CuotaTotal=" + formatAmount(p.TaxTotal) +
		"&ImporteTotal=" + formatAmount(p.TotalAmount) +
		"&Huella=" + p.PrevDigest +
		"&FechaHoraHusoGenRegistro=" + p.GeneratedAt.Format(timestampLayout)

	return cadena, nil
}

// Digest devuelve la huella: SHA-256 de la cadena canónica, en hexadecimal
// mayúsculas (64 caracteres).
func (h *Hasher) Digest(p *ChainParams) (string, error) {
	cadena, err := h.CanonicalString(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(cadena))
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// formatAmount formatea montos para la cadena canónica: sin separador de
// miles, punto decimal, 2 decimales (ej: 1500.00).
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
