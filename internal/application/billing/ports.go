package billing

import (
	"context"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

// FinalizeTxRunner ejecuta una función dentro de una transacción que incluye
// los repos de documentos, contadores de serie y cola de envíos. Todo lo que
// haga fn se confirma o revierte en bloque: un fallo a mitad nunca deja un
// número asignado sin documento, ni un documento emitido sin job encolado.
type FinalizeTxRunner interface {
	RunFinalize(ctx context.Context, fn func(
		docs repository.DocumentRepository,
		counters repository.SeriesCounterRepository,
		jobs repository.SubmissionJobRepository,
	) error) error
}

// PayloadEncoder serializa un documento emitido a su representación canónica
// de envío. Debe ser determinista: reenviar un documento ya aceptado produce
// exactamente los mismos bytes, así el endpoint remoto puede deduplicar.
type PayloadEncoder interface {
	Encode(doc *entity.Document) (string, error)
}

// BillingConfig parámetros fiscales del emisor para el caso de uso.
type BillingConfig struct {
	IssuerNIF       string // NIF del emisor; entra en la huella de cada documento
	SequenceRetries int    // presupuesto de reintentos ante conflicto de numeración
}
