package submission

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
)

// JobsUseCase expone la cola de envíos al operador: listar jobs y re-encolar
// un envío fallido permanentemente. El re-encolado es seguro porque el
// payload es determinista y el remoto deduplica por serie+número o huella.
type JobsUseCase struct {
	jobs repository.SubmissionJobRepository
}

// NewJobsUseCase construye el caso de uso.
func NewJobsUseCase(jobs repository.SubmissionJobRepository) *JobsUseCase {
	return &JobsUseCase{jobs: jobs}
}

// List devuelve los jobs en el estado dado ("" = todos).
func (uc *JobsUseCase) List(ctx context.Context, state string) ([]dto.SubmissionJobResponse, error) {
	jobs, err := uc.jobs.List(ctx, state)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SubmissionJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out, nil
}

// Retry re-encola el job de un documento cuya entrega falló permanentemente.
// Resetea el contador de intentos y lo deja exigible de inmediato; el worker
// lo recogerá en su próximo ciclo.
func (uc *JobsUseCase) Retry(ctx context.Context, documentID string) (*dto.SubmissionJobResponse, error) {
	job, err := uc.jobs.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	if job.State != entity.JobStateFailed {
		return nil, domain.ErrConflict
	}

	now := time.Now()
	job.State = entity.JobStatePending
	job.AttemptCount = 0
	job.NextAttemptAt = now
	job.LastError = ""
	job.UpdatedAt = now
	if err := uc.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	resp := toJobResponse(job)
	return &resp, nil
}

func toJobResponse(j *entity.SubmissionJob) dto.SubmissionJobResponse {
	resp := dto.SubmissionJobResponse{
		ID:           j.ID,
		DocumentID:   j.DocumentID,
		State:        j.State,
		AttemptCount: j.AttemptCount,
		LastError:    j.LastError,
		EnqueuedAt:   j.EnqueuedAt.Format(time.RFC3339),
	}
	if !j.NextAttemptAt.IsZero() && j.State == entity.JobStatePending {
		resp.NextAttemptAt = j.NextAttemptAt.Format(time.RFC3339)
	}
	return resp
}
