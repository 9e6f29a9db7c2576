package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// SeriesCounterRepository define el puerto del contador por serie. Es el
// punto de exclusión mutua de la numeración: dos emisiones concurrentes de la
// misma serie se serializan en el bloqueo de fila del contador.
type SeriesCounterRepository interface {
	// LockAndGet devuelve el contador de la serie tomando un bloqueo de
	// fila (SELECT ... FOR UPDATE) que se mantiene hasta el fin de la
	// transacción. Si la serie no existe todavía, crea el registro a cero
	// antes de bloquearlo. Solo tiene sentido dentro de una transacción.
	LockAndGet(ctx context.Context, series entity.FiscalSeries) (*entity.SeriesCounter, error)

	// Advance persiste el nuevo último número y la nueva última huella.
	// Debe ejecutarse en la misma transacción que tomó el bloqueo, de modo
	// que contador y documento se confirmen (o se reviertan) juntos.
	Advance(ctx context.Context, counter *entity.SeriesCounter) error
}
