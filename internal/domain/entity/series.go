package entity

import (
	"fmt"
	"time"
)

// FiscalSeries identifica un espacio de numeración: (tipo de documento,
// código de serie, ejercicio fiscal). La numeración de cada serie es densa
// desde 1, estrictamente creciente, y nunca cruza el cambio de ejercicio.
type FiscalSeries struct {
	DocumentType string
	SeriesCode   string
	FiscalYear   int
}

// String devuelve la representación "TIPO/SERIE/AÑO" usada en logs.
func (s FiscalSeries) String() string {
	return fmt.Sprintf("%s/%s/%d", s.DocumentType, s.SeriesCode, s.FiscalYear)
}

// SeriesCounter es el registro contable de la serie: último número emitido y
// huella del último documento. Se actualiza con bloqueo de fila dentro de la
// misma transacción que la emisión del documento, así la pareja
// (last_number, last_digest) nunca se observa a medio escribir.
type SeriesCounter struct {
	Series     FiscalSeries
	LastNumber int64  // 0 si la serie aún no tiene documentos emitidos
	LastDigest string // "" si la serie está vacía
	UpdatedAt  time.Time
}
