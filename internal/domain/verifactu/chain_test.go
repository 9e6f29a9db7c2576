package verifactu_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tu-usuario/facturacion-pro/internal/domain/verifactu"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestDigest_VectorExacto valida que el cálculo SHA-256 de la huella produce
// el hash exacto esperado para parámetros conocidos.
//
// Este test es el "canario en la mina" de la cadena de integridad: si alguien
// modifica inadvertidamente la cadena de concatenación, el orden de los campos
// o el formato de los montos, el test falla inmediatamente y las huellas ya
// almacenadas dejarían de verificar.
//
// Vector calculado manualmente con SHA-256:
//
//	Cadena = "IDEmisorFactura=B12345678&NumSerieFactura=X1" +
//	         "&FechaExpedicionFactura=2025-03-01&TipoFactura=FACTURA" +
//	         "&CuotaTotal=210.00&ImporteTotal=1210.00&Huella=" +
//	         "&FechaHoraHusoGenRegistro=2025-03-01T10:30:00+01:00"
// ──────────────────────────────────────────────────────────────────────────────

const (
	testDigestFirst  = "802306FA0EA3D5D36E5ED41689D05508F0FEA714B7E4AF68CA56EAC5BF64D0E2"
	testDigestSecond = "718925ADC3567752A779BC18E0D0434AB2FD85FCF3C02D67E3273D0EC81E8756"

	testIssuerNIF = "B12345678"
	testSeries    = "X"
)

var testMadrid = time.FixedZone("CET", 3600)

func buildFirstParams() *verifactu.ChainParams {
	return &verifactu.ChainParams{
		IssuerID:     testIssuerNIF,
		SeriesCode:   testSeries,
		Number:       1,
		IssueDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, testMadrid),
		DocumentType: "FACTURA",
		TaxTotal:     decimal.NewFromInt(210),
		TotalAmount:  decimal.NewFromInt(1210),
		PrevDigest:   "",
		GeneratedAt:  time.Date(2025, 3, 1, 10, 30, 0, 0, testMadrid),
	}
}

func TestDigest_VectorExacto(t *testing.T) {
	h := verifactu.NewHasher()

	digest, err := h.Digest(buildFirstParams())
	require.NoError(t, err, "Digest no debe retornar error con parámetros válidos")
	assert.Equal(t, testDigestFirst, digest,
		"la huella debe coincidir exactamente con el vector SHA-256 de referencia")
}

// TestDigest_Encadenado verifica que la huella del segundo documento de la
// serie, calculada contra la huella del primero, reproduce el vector esperado
// (propiedad de encadenamiento doc[i].Huella ← doc[i-1].Huella).
func TestDigest_Encadenado(t *testing.T) {
	h := verifactu.NewHasher()

	second := &verifactu.ChainParams{
		IssuerID:     testIssuerNIF,
		SeriesCode:   testSeries,
		Number:       2,
		IssueDate:    time.Date(2025, 3, 2, 0, 0, 0, 0, testMadrid),
		DocumentType: "FACTURA",
		TaxTotal:     decimal.NewFromInt(42),
		TotalAmount:  decimal.NewFromInt(242),
		PrevDigest:   testDigestFirst,
		GeneratedAt:  time.Date(2025, 3, 2, 9, 0, 0, 0, testMadrid),
	}

	digest, err := h.Digest(second)
	require.NoError(t, err)
	assert.Equal(t, testDigestSecond, digest)
}

// TestDigest_Determinista verifica que llamar Digest dos veces con los mismos
// parámetros produce siempre el mismo hash (función pura, sin dependencia
// oculta del reloj).
func TestDigest_Determinista(t *testing.T) {
	h := verifactu.NewHasher()
	p := buildFirstParams()

	d1, err1 := h.Digest(p)
	d2, err2 := h.Digest(p)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, d1, d2, "el mismo input siempre debe producir la misma huella")
}

// TestDigest_SensibleAlImporte verifica que alterar un campo monetario cambia
// la huella: es exactamente la manipulación que la cadena debe delatar.
func TestDigest_SensibleAlImporte(t *testing.T) {
	h := verifactu.NewHasher()

	p1 := buildFirstParams()
	p2 := buildFirstParams()
	p2.TotalAmount = p2.TotalAmount.Add(decimal.NewFromFloat(0.01)) // un céntimo

	d1, _ := h.Digest(p1)
	d2, _ := h.Digest(p2)

	assert.NotEqual(t, d1, d2,
		"cambiar el importe total debe producir una huella distinta")
}

// TestDigest_SensibleALaHuellaAnterior verifica que la huella depende de la
// del documento anterior (romper un eslabón invalida los siguientes).
func TestDigest_SensibleALaHuellaAnterior(t *testing.T) {
	h := verifactu.NewHasher()

	p1 := buildFirstParams()
	p2 := buildFirstParams()
	p2.PrevDigest = testDigestSecond

	d1, _ := h.Digest(p1)
	d2, _ := h.Digest(p2)

	assert.NotEqual(t, d1, d2)
}

// ── Errores de validación ─────────────────────────────────────────────────────

func TestDigest_ErrorSiNilParams(t *testing.T) {
	h := verifactu.NewHasher()
	_, err := h.Digest(nil)
	assert.Error(t, err, "Digest con nil debe retornar error")
}

func TestDigest_ErrorSiEmisorVacio(t *testing.T) {
	h := verifactu.NewHasher()
	p := buildFirstParams()
	p.IssuerID = "  "
	_, err := h.Digest(p)
	assert.Error(t, err, "Digest sin IDEmisorFactura debe retornar error")
}

func TestDigest_ErrorSiNumeroInvalido(t *testing.T) {
	h := verifactu.NewHasher()
	p := buildFirstParams()
	p.Number = 0
	_, err := h.Digest(p)
	assert.Error(t, err, "Digest con número < 1 debe retornar error")
}

// TestDigest_Formato valida que la huella tenga exactamente 64 caracteres
// hexadecimales en mayúsculas (SHA-256 = 256 bits = 64 nibbles).
func TestDigest_Formato(t *testing.T) {
	h := verifactu.NewHasher()
	digest, err := h.Digest(buildFirstParams())
	require.NoError(t, err)
	assert.Len(t, digest, 64, "la huella debe tener 64 caracteres hexadecimales")
	assert.Regexp(t, `^[0-9A-F]{64}$`, digest, "la huella debe ser hex en mayúsculas")
}
