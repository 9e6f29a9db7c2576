package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

var _ repository.SeriesCounterRepository = (*SeriesCounterRepo)(nil)

// SeriesCounterRepo implementa SeriesCounterRepository sobre la tabla
// series_counters. El SELECT ... FOR UPDATE de LockAndGet es el punto de
// serialización de la numeración: el bloqueo de fila se mantiene hasta el
// COMMIT de la transacción que emite el documento.
type SeriesCounterRepo struct {
	q Querier
}

// NewSeriesCounterRepository construye el adaptador. Pensado para usarse con
// tx: fuera de una transacción el FOR UPDATE no serializa nada.
func NewSeriesCounterRepository(q Querier) *SeriesCounterRepo {
	return &SeriesCounterRepo{q: q}
}

// LockAndGet devuelve el contador de la serie con bloqueo de fila, creándolo
// a cero si la serie aún no existe.
func (r *SeriesCounterRepo) LockAndGet(ctx context.Context, series entity.FiscalSeries) (*entity.SeriesCounter, error) {
	// Asegurar que la fila existe antes de bloquearla. ON CONFLICT DO NOTHING
	// hace la creación idempotente frente a dos primeras emisiones a la vez.
	const insert = `
		INSERT INTO series_counters (document_type, series_code, fiscal_year, last_number, last_digest, updated_at)
		VALUES ($1, $2, $3, 0, '', now())
		ON CONFLICT (document_type, series_code, fiscal_year) DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, series.DocumentType, series.SeriesCode, series.FiscalYear); err != nil {
		if isSerializationFailure(err) {
			return nil, fmt.Errorf("%w: creando contador de %s", domain.ErrSequenceConflict, series)
		}
		return nil, fmt.Errorf("insert series counter: %w", err)
	}

	const query = `
		SELECT last_number, last_digest, updated_at
		FROM series_counters
		WHERE document_type = $1 AND series_code = $2 AND fiscal_year = $3
		FOR UPDATE`
	counter := &entity.SeriesCounter{Series: series}
	err := r.q.QueryRow(ctx, query, series.DocumentType, series.SeriesCode, series.FiscalYear).
		Scan(&counter.LastNumber, &counter.LastDigest, &counter.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// La fila se insertó arriba; no verla aquí es una anomalía seria.
			return nil, fmt.Errorf("series counter desapareció tras el insert: %s", series)
		}
		if isSerializationFailure(err) {
			return nil, fmt.Errorf("%w: bloqueando contador de %s", domain.ErrSequenceConflict, series)
		}
		return nil, fmt.Errorf("lock series counter: %w", err)
	}
	return counter, nil
}

// Advance persiste el nuevo último número y la nueva última huella bajo el
// bloqueo ya tomado por LockAndGet.
func (r *SeriesCounterRepo) Advance(ctx context.Context, counter *entity.SeriesCounter) error {
	const query = `
		UPDATE series_counters
		SET last_number = $4, last_digest = $5, updated_at = now()
		WHERE document_type = $1 AND series_code = $2 AND fiscal_year = $3`
	tag, err := r.q.Exec(ctx, query,
		counter.Series.DocumentType, counter.Series.SeriesCode, counter.Series.FiscalYear,
		counter.LastNumber, counter.LastDigest,
	)
	if err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: avanzando contador de %s", domain.ErrSequenceConflict, counter.Series)
		}
		return fmt.Errorf("advance series counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("series counter inexistente: %s", counter.Series)
	}
	return nil
}
