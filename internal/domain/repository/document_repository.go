package repository

import (
	"context"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia para documentos
// fiscales y sus líneas.
type DocumentRepository interface {
	// Create persiste un borrador (cabecera + líneas).
	Create(ctx context.Context, doc *entity.Document) error

	// UpdateDraft reemplaza los campos mutables y las líneas de un borrador.
	// Falla con ErrNotDraft si el documento ya fue emitido.
	UpdateDraft(ctx context.Context, doc *entity.Document) error

	// Finalize persiste de una sola vez el cambio de estado DRAFT→PENDING
	// junto con serie, número, huella y huella anterior. Esos campos son
	// write-once: el UPDATE exige status = DRAFT y la violación del índice
	// único de (tipo, serie, año, número) se reporta como conflicto.
	Finalize(ctx context.Context, doc *entity.Document) error

	// SetStatus registra una transición de estado permitida sobre un
	// documento emitido (PENDING→PAID). No toca numeración, huellas,
	// líneas ni importes.
	SetStatus(ctx context.Context, id, status string) error

	// LogicalDelete marca el documento como borrado. Para documentos
	// emitidos el número y la huella siguen consumidos en la serie.
	LogicalDelete(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// GetByIDForUpdate lee el documento tomando un bloqueo de fila
	// (SELECT ... FOR UPDATE) que se mantiene hasta el fin de la
	// transacción. Es la lectura de la emisión: congela el borrador para
	// que ninguna edición concurrente cambie líneas o importes entre la
	// revalidación y el cálculo de la huella.
	GetByIDForUpdate(ctx context.Context, id string) (*entity.Document, error)

	// GetBySeriesAndNumber busca el documento emitido con ese número en la
	// serie. Devuelve nil, nil si no existe. Es la consulta usada para
	// recuperar la huella del predecesor.
	GetBySeriesAndNumber(ctx context.Context, series entity.FiscalSeries, number int64) (*entity.Document, error)

	// ListFinalizedBySeries devuelve los documentos emitidos de la serie
	// ordenados por número ascendente (comparación numérica, no textual).
	// Incluye los borrados lógicamente: siguen siendo eslabones de la cadena.
	ListFinalizedBySeries(ctx context.Context, series entity.FiscalSeries) ([]*entity.Document, error)
}
