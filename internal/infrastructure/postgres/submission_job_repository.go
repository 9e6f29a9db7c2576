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

var _ repository.SubmissionJobRepository = (*SubmissionJobRepo)(nil)

// SubmissionJobRepo implementa la cola durable de envíos sobre la tabla
// submission_jobs (usable con pool o tx).
type SubmissionJobRepo struct {
	q Querier
}

// NewSubmissionJobRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSubmissionJobRepository(q Querier) *SubmissionJobRepo {
	return &SubmissionJobRepo{q: q}
}

// Enqueue inserta el job. El UNIQUE de document_id garantiza "exactamente un
// job por emisión" también a nivel de esquema.
func (r *SubmissionJobRepo) Enqueue(ctx context.Context, job *entity.SubmissionJob) error {
	const query = `
		INSERT INTO submission_jobs
			(id, document_id, payload, state, attempt_count, next_attempt_at, last_error, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		job.ID, job.DocumentID, job.Payload, job.State, job.AttemptCount,
		job.NextAttemptAt, nullIfEmpty(job.LastError), job.EnqueuedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe un job para el documento %s", domain.ErrConflict, job.DocumentID)
		}
		return fmt.Errorf("insert submission job: %w", err)
	}
	return nil
}

const jobColumns = `
	id, document_id, payload, state, attempt_count, next_attempt_at, last_error, enqueued_at, updated_at`

// NextDue devuelve el job PENDING más antiguo si ya venció su cita. Un job en
// backoff bloquea a los posteriores: la entrega respeta el orden de emisión.
func (r *SubmissionJobRepo) NextDue(ctx context.Context, now time.Time) (*entity.SubmissionJob, error) {
	const query = `
		SELECT ` + jobColumns + `
		FROM submission_jobs
		WHERE state = 'PENDING'
		ORDER BY enqueued_at ASC, id ASC
		LIMIT 1`
	job, err := scanJob(r.q.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("next due submission job: %w", err)
	}
	if job.NextAttemptAt.After(now) {
		return nil, nil // el primero de la cola aún está en backoff
	}
	return job, nil
}

// Update persiste el resultado de un intento o un re-encolado manual.
func (r *SubmissionJobRepo) Update(ctx context.Context, job *entity.SubmissionJob) error {
	const query = `
		UPDATE submission_jobs
		SET state = $2, attempt_count = $3, next_attempt_at = $4, last_error = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		job.ID, job.State, job.AttemptCount, job.NextAttemptAt, nullIfEmpty(job.LastError), job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByDocumentID busca el job del documento. Devuelve nil, nil si no existe.
func (r *SubmissionJobRepo) GetByDocumentID(ctx context.Context, documentID string) (*entity.SubmissionJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM submission_jobs WHERE document_id = $1`
	job, err := scanJob(r.q.QueryRow(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission job: %w", err)
	}
	return job, nil
}

// List devuelve los jobs en el estado dado ("" = todos) por orden de encolado.
func (r *SubmissionJobRepo) List(ctx context.Context, state string) ([]*entity.SubmissionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM submission_jobs ORDER BY enqueued_at ASC, id ASC`
	args := []any{}
	if state != "" {
		query = `SELECT ` + jobColumns + ` FROM submission_jobs WHERE state = $1 ORDER BY enqueued_at ASC, id ASC`
		args = append(args, state)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submission jobs: %w", err)
	}
	defer rows.Close()
	var list []*entity.SubmissionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission job: %w", err)
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

func scanJob(row pgxScanner) (*entity.SubmissionJob, error) {
	var job entity.SubmissionJob
	var lastError *string
	err := row.Scan(
		&job.ID, &job.DocumentID, &job.Payload, &job.State, &job.AttemptCount,
		&job.NextAttemptAt, &lastError, &job.EnqueuedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.LastError = derefStr(lastError)
	return &job, nil
}
