package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

// Create persiste un borrador: cabecera y líneas.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	const query = `
		INSERT INTO documents
			(id, owner_id, document_type, series_code, fiscal_year, status,
			 client_name, client_nif, issue_date, due_date, tax_total, total_amount,
			 deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.OwnerID, doc.DocumentType, doc.SeriesCode, doc.FiscalYear, doc.Status,
		doc.ClientName, doc.ClientNIF, doc.IssueDate, nullIfZeroTime(doc.DueDate),
		doc.TaxTotal, doc.TotalAmount, doc.Deleted, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return r.insertLines(ctx, doc)
}

// UpdateDraft reemplaza los campos mutables y las líneas. El WHERE exige
// status = DRAFT: un documento emitido nunca se toca por esta vía.
func (r *DocumentRepo) UpdateDraft(ctx context.Context, doc *entity.Document) error {
	const query = `
		UPDATE documents
		SET series_code = $2, client_name = $3, client_nif = $4, due_date = $5,
		    tax_total = $6, total_amount = $7, updated_at = $8
		WHERE id = $1 AND status = 'DRAFT' AND NOT deleted`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, doc.SeriesCode, doc.ClientName, doc.ClientNIF, nullIfZeroTime(doc.DueDate),
		doc.TaxTotal, doc.TotalAmount, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotDraft
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete draft lines: %w", err)
	}
	return r.insertLines(ctx, doc)
}

// Finalize persiste la emisión en un solo UPDATE condicionado a DRAFT.
// El índice único de (tipo, serie, año, número) es la red de seguridad del
// contador: si otra transacción coló el mismo número, se devuelve
// ErrSequenceConflict para que el caso de uso reintente.
func (r *DocumentRepo) Finalize(ctx context.Context, doc *entity.Document) error {
	const query = `
		UPDATE documents
		SET number = $2, status = $3, chain_digest = $4, prev_digest = $5,
		    finalized_at = $6, updated_at = $7
		WHERE id = $1 AND status = 'DRAFT' AND NOT deleted`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, doc.Number, doc.Status, doc.ChainDigest, doc.PrevDigest,
		doc.FinalizedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return fmt.Errorf("%w: número %d de %s", domain.ErrSequenceConflict, doc.Number, doc.Series())
		}
		return fmt.Errorf("finalize document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotDraft
	}
	return nil
}

// SetStatus registra una transición de estado sobre un documento emitido.
// Solo toca la columna status: numeración, huellas e importes quedan como
// están por construcción de la query.
func (r *DocumentRepo) SetStatus(ctx context.Context, id, status string) error {
	const query = `
		UPDATE documents SET status = $2, updated_at = now()
		WHERE id = $1 AND number IS NOT NULL AND NOT deleted`
	tag, err := r.q.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LogicalDelete marca el documento como borrado sin liberar su número.
func (r *DocumentRepo) LogicalDelete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE documents SET deleted = true, updated_at = now() WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return fmt.Errorf("logical delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const documentColumns = `
	id, owner_id, document_type, series_code, fiscal_year, number, status,
	client_name, client_nif, issue_date, due_date, tax_total, total_amount,
	chain_digest, prev_digest, finalized_at, deleted, created_at, updated_at`

// GetByID obtiene un documento completo (cabecera + líneas).
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := r.scanOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	if err != nil || doc == nil {
		return doc, err
	}
	doc.Lines, err = r.linesFor(ctx, doc.ID)
	return doc, err
}

// GetByIDForUpdate obtiene el documento con bloqueo de fila. Solo tiene
// sentido dentro de una transacción: fuera de ella el FOR UPDATE no retiene
// nada tras el retorno.
func (r *DocumentRepo) GetByIDForUpdate(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := r.scanOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
	if err != nil || doc == nil {
		return doc, err
	}
	doc.Lines, err = r.linesFor(ctx, doc.ID)
	return doc, err
}

// GetBySeriesAndNumber busca el documento emitido con ese número en la serie.
// Devuelve nil, nil si no existe.
func (r *DocumentRepo) GetBySeriesAndNumber(ctx context.Context, series entity.FiscalSeries, number int64) (*entity.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE document_type = $1 AND series_code = $2 AND fiscal_year = $3 AND number = $4`
	return r.scanOne(ctx, query, series.DocumentType, series.SeriesCode, series.FiscalYear, number)
}

// ListFinalizedBySeries devuelve los documentos emitidos de la serie en orden
// numérico ascendente. number es BIGINT: la comparación es de enteros, nunca
// la ordenación textual de una representación con ceros a la izquierda.
func (r *DocumentRepo) ListFinalizedBySeries(ctx context.Context, series entity.FiscalSeries) ([]*entity.Document, error) {
	const query = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE document_type = $1 AND series_code = $2 AND fiscal_year = $3
		  AND number IS NOT NULL
		ORDER BY number ASC`
	rows, err := r.q.Query(ctx, query, series.DocumentType, series.SeriesCode, series.FiscalYear)
	if err != nil {
		return nil, fmt.Errorf("list documents by series: %w", err)
	}
	defer rows.Close()
	var list []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (r *DocumentRepo) insertLines(ctx context.Context, doc *entity.Document) error {
	const query = `
		INSERT INTO document_lines
			(id, document_id, concept, quantity, unit_amount, discount_pct, tax_pct, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, l := range doc.Lines {
		if _, err := r.q.Exec(ctx, query,
			l.ID, doc.ID, l.Concept, l.Quantity, l.UnitAmount, l.DiscountPct, l.TaxPct, l.LineTotal,
		); err != nil {
			return fmt.Errorf("insert document line: %w", err)
		}
	}
	return nil
}

func (r *DocumentRepo) linesFor(ctx context.Context, documentID string) ([]*entity.ServiceLine, error) {
	const query = `
		SELECT id, document_id, concept, quantity, unit_amount, discount_pct, tax_pct, line_total
		FROM document_lines WHERE document_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document lines: %w", err)
	}
	defer rows.Close()
	var lines []*entity.ServiceLine
	for rows.Next() {
		var l entity.ServiceLine
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Concept, &l.Quantity,
			&l.UnitAmount, &l.DiscountPct, &l.TaxPct, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

func (r *DocumentRepo) scanOne(ctx context.Context, query string, args ...any) (*entity.Document, error) {
	doc, err := scanDocument(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// pgxScanner abstrae pgx.Row y pgx.Rows para reutilizar scanDocument.
type pgxScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row pgxScanner) (*entity.Document, error) {
	var doc entity.Document
	var number *int64
	var dueDate, finalizedAt *time.Time
	var chainDigest, prevDigest *string
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.DocumentType, &doc.SeriesCode, &doc.FiscalYear,
		&number, &doc.Status, &doc.ClientName, &doc.ClientNIF, &doc.IssueDate,
		&dueDate, &doc.TaxTotal, &doc.TotalAmount, &chainDigest, &prevDigest,
		&finalizedAt, &doc.Deleted, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if number != nil {
		doc.Number = *number
	}
	if dueDate != nil {
		doc.DueDate = *dueDate
	}
	if finalizedAt != nil {
		doc.FinalizedAt = *finalizedAt
	}
	doc.ChainDigest = derefStr(chainDigest)
	doc.PrevDigest = derefStr(prevDigest)
	return &doc, nil
}

func nullIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
