package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

var _ billing.FinalizeTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFinalize inicia una transacción con los repos que participan en la
// emisión: documentos, contadores de serie y cola de envíos. fn ve los tres
// atados a la misma tx; si retorna error se hace rollback de todo, incluido
// cualquier número asignado o job encolado a medias.
func (r *TxRunner) RunFinalize(ctx context.Context, fn func(
	docs repository.DocumentRepository,
	counters repository.SeriesCounterRepository,
	jobs repository.SubmissionJobRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docs := NewDocumentRepository(tx)
	counters := NewSeriesCounterRepository(tx)
	jobs := NewSubmissionJobRepository(tx)

	if err := fn(docs, counters, jobs); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
