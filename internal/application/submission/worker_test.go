package submission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-pro/internal/application/submission"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/aeat"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

// fakeQueue implementa la cola en memoria con la misma semántica que la
// implementación SQL: NextDue devuelve el PENDING más antiguo solo si su cita
// ya venció, y un job en backoff bloquea a los posteriores.
type fakeQueue struct {
	jobs []*entity.SubmissionJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job *entity.SubmissionJob) error {
	cp := *job
	q.jobs = append(q.jobs, &cp)
	return nil
}

func (q *fakeQueue) NextDue(_ context.Context, now time.Time) (*entity.SubmissionJob, error) {
	for _, j := range q.jobs {
		if j.State == entity.JobStatePending {
			if j.NextAttemptAt.After(now) {
				return nil, nil
			}
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) Update(_ context.Context, job *entity.SubmissionJob) error {
	for i, j := range q.jobs {
		if j.ID == job.ID {
			cp := *job
			q.jobs[i] = &cp
			return nil
		}
	}
	return domain.ErrNotFound
}

func (q *fakeQueue) GetByDocumentID(_ context.Context, documentID string) (*entity.SubmissionJob, error) {
	for _, j := range q.jobs {
		if j.DocumentID == documentID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) List(_ context.Context, state string) ([]*entity.SubmissionJob, error) {
	var out []*entity.SubmissionJob
	for _, j := range q.jobs {
		if state == "" || j.State == state {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ repository.SubmissionJobRepository = (*fakeQueue)(nil)

// fakeSubmitter guiona los resultados de cada llamada: un error por intento y
// cuando se agota el guion, acepta.
type fakeSubmitter struct {
	failures []error
	calls    int
	payloads []string
}

func (s *fakeSubmitter) Submit(_ context.Context, payload, _ string) (*aeat.SubmitResult, error) {
	s.payloads = append(s.payloads, payload)
	s.calls++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	return &aeat.SubmitResult{RegistryID: "CSV-0001", Accepted: true}, nil
}

func seedJob(q *fakeQueue, enqueuedAt time.Time) *entity.SubmissionJob {
	documentID := uuid.New().String()
	job := &entity.SubmissionJob{
		ID:            uuid.New().String(),
		DocumentID:    documentID,
		Payload:       "<RegistroFactura>" + documentID + "</RegistroFactura>",
		State:         entity.JobStatePending,
		NextAttemptAt: enqueuedAt,
		EnqueuedAt:    enqueuedAt,
	}
	_ = q.Enqueue(context.Background(), job)
	return job
}

func newWorker(q *fakeQueue, sub aeat.Submitter, maxAttempts int) *submission.Worker {
	return submission.NewWorker(q, sub, submission.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
		BaseDelay:    5 * time.Second,
		MaxAttempts:  maxAttempts,
		Env:          aeat.AppEnvTest,
	}, zerolog.Nop())
}

// makeDue adelanta la cita del job para que NextDue lo devuelva ya.
func makeDue(q *fakeQueue, id string) {
	for _, j := range q.jobs {
		if j.ID == id {
			j.NextAttemptAt = time.Now().Add(-time.Second)
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests del worker
// ──────────────────────────────────────────────────────────────────────────────

func TestWorker_EntregaExitosa(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	sub := &fakeSubmitter{}
	w := newWorker(q, sub, 5)

	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStateSucceeded, stored.State)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, []string{job.Payload}, sub.payloads,
		"debe enviarse exactamente el payload encolado")
}

// Un fallo transitorio reprograma el job con backoff exponencial: 5 s tras el
// primer intento, 10 s tras el segundo.
func TestWorker_FalloTransitorio_Reprograma(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	sub := &fakeSubmitter{failures: []error{errors.New("timeout"), errors.New("timeout")}}
	w := newWorker(q, sub, 5)

	// Primer intento: falla y programa la cita ~5 s en el futuro.
	before := time.Now()
	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStatePending, stored.State, "un fallo transitorio no es terminal")
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Contains(t, stored.LastError, "timeout")
	assert.WithinDuration(t, before.Add(5*time.Second), stored.NextAttemptAt, 2*time.Second)

	// Mientras no venza la cita, la cola no entrega nada.
	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed, "el job en backoff no debe reintentarse antes de su cita")

	// Segundo intento (cita vencida): el backoff se duplica a ~10 s.
	makeDue(q, job.ID)
	before = time.Now()
	_, err = w.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, _ = q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, 2, stored.AttemptCount)
	assert.WithinDuration(t, before.Add(10*time.Second), stored.NextAttemptAt, 2*time.Second)
}

// Tras varios fallos el job acaba entregándose y queda SUCCEEDED.
func TestWorker_FallaYLuegoEntrega(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	sub := &fakeSubmitter{failures: []error{
		errors.New("conexión rechazada"),
		errors.New("conexión rechazada"),
		errors.New("conexión rechazada"),
		errors.New("conexión rechazada"),
	}}
	w := newWorker(q, sub, 5)

	for i := 0; i < 5; i++ {
		makeDue(q, job.ID)
		_, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
	}

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStateSucceeded, stored.State,
		"el quinto intento entrega y el job termina en SUCCEEDED")
	assert.Equal(t, 5, stored.AttemptCount)
}

// Agotado el presupuesto de intentos el job queda FAILED_PERMANENTLY, con su
// payload y su último error retenidos para inspección.
func TestWorker_AgotaIntentos_FailedPermanently(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	sub := &fakeSubmitter{failures: []error{
		errors.New("503"), errors.New("503"), errors.New("503"),
	}}
	w := newWorker(q, sub, 3)

	for i := 0; i < 3; i++ {
		makeDue(q, job.ID)
		_, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
	}

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStateFailed, stored.State)
	assert.Equal(t, 3, stored.AttemptCount)
	assert.Contains(t, stored.LastError, domain.ErrDeliveryPermanent.Error(),
		"el último error debe marcarse como definitivo para el operador")
	assert.Contains(t, stored.LastError, "503")
	assert.Equal(t, job.Payload, stored.Payload, "el payload queda retenido para re-encolar")

	// Un job terminal ya no se entrega.
	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

// La entrega respeta el orden de emisión: un job en backoff a la cabeza
// bloquea a los encolados después aunque estos ya estén vencidos.
func TestWorker_RespetaOrdenDeEncolado(t *testing.T) {
	q := &fakeQueue{}
	head := seedJob(q, time.Now().Add(-2*time.Minute))
	tail := seedJob(q, time.Now().Add(-time.Minute))
	sub := &fakeSubmitter{failures: []error{errors.New("timeout")}}
	w := newWorker(q, sub, 5)

	// El primer intento del head falla y lo deja en backoff.
	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	// El tail está vencido, pero no debe adelantar al head.
	processed, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed, "un job posterior no debe adelantar al head en backoff")

	// Cuando el head por fin entrega, el tail sale a continuación.
	makeDue(q, head.ID)
	_, err = w.ProcessNext(context.Background())
	require.NoError(t, err)
	_, err = w.ProcessNext(context.Background())
	require.NoError(t, err)

	storedHead, _ := q.GetByDocumentID(context.Background(), head.DocumentID)
	storedTail, _ := q.GetByDocumentID(context.Background(), tail.DocumentID)
	assert.Equal(t, entity.JobStateSucceeded, storedHead.State)
	assert.Equal(t, entity.JobStateSucceeded, storedTail.State)
	assert.Equal(t, []string{head.Payload, head.Payload, tail.Payload}, sub.payloads,
		"el orden de entrega debe ser el orden de encolado")
}

// En modo dev no hay WS: la entrega se simula y el job termina SUCCEEDED.
func TestWorker_ModoDev_EntregaSimulada(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	w := submission.NewWorker(q, nil, submission.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
		BaseDelay:    time.Second,
		MaxAttempts:  3,
		Env:          aeat.AppEnvDev,
	}, zerolog.Nop())

	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStateSucceeded, stored.State)
}

// Un rechazo explícito de la agencia cuenta como fallo de entrega.
func TestWorker_RechazoDeLaAgencia(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	w := newWorker(q, rejectingSubmitter{}, 5)

	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStatePending, stored.State)
	assert.Contains(t, stored.LastError, "rechazado")
}

type rejectingSubmitter struct{}

func (rejectingSubmitter) Submit(context.Context, string, string) (*aeat.SubmitResult, error) {
	return &aeat.SubmitResult{Accepted: false, Errors: "NIF del emisor no censado"}, nil
}

// Con muchos intentos acumulados el backoff se satura en vez de desbordar:
// la siguiente cita queda siempre en el futuro, nunca en el pasado.
func TestWorker_BackoffSaturaConMuchosIntentos(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	job.AttemptCount = 50
	require.NoError(t, q.Update(context.Background(), job))
	sub := &fakeSubmitter{failures: []error{errors.New("503")}}
	w := newWorker(q, sub, 100)

	before := time.Now()
	_, err := w.ProcessNext(context.Background())
	require.NoError(t, err)

	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStatePending, stored.State)
	assert.True(t, stored.NextAttemptAt.After(before),
		"la cita debe quedar en el futuro aunque el desplazamiento sature")
	maxDelay := 5 * time.Second << 16
	assert.WithinDuration(t, before.Add(maxDelay), stored.NextAttemptAt, 2*time.Second)
}

// El ciclo Start/Stop procesa la cola en background y se detiene limpio.
func TestWorker_StartStop(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	w := submission.NewWorker(q, nil, submission.WorkerConfig{
		PollInterval: 5 * time.Millisecond,
		BaseDelay:    time.Second,
		MaxAttempts:  3,
		Env:          aeat.AppEnvDev,
	}, zerolog.Nop())

	w.Start(context.Background())

	require.Eventually(t, func() bool {
		stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
		return stored.State == entity.JobStateSucceeded
	}, 2*time.Second, 10*time.Millisecond, "el worker debe drenar la cola en background")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests del re-encolado por operador
// ──────────────────────────────────────────────────────────────────────────────

func TestJobsUseCase_RetryReencolaFallido(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))
	job.State = entity.JobStateFailed
	job.AttemptCount = 5
	job.LastError = "503"
	require.NoError(t, q.Update(context.Background(), job))

	uc := submission.NewJobsUseCase(q)
	out, err := uc.Retry(context.Background(), job.DocumentID)
	require.NoError(t, err)

	assert.Equal(t, entity.JobStatePending, out.State)
	assert.Zero(t, out.AttemptCount, "el re-encolado resetea el presupuesto de intentos")

	// Y el worker lo entrega en el siguiente ciclo.
	w := newWorker(q, &fakeSubmitter{}, 5)
	_, err = w.ProcessNext(context.Background())
	require.NoError(t, err)
	stored, _ := q.GetByDocumentID(context.Background(), job.DocumentID)
	assert.Equal(t, entity.JobStateSucceeded, stored.State)
}

func TestJobsUseCase_RetrySoloSobreFallidos(t *testing.T) {
	q := &fakeQueue{}
	job := seedJob(q, time.Now().Add(-time.Minute))

	uc := submission.NewJobsUseCase(q)
	_, err := uc.Retry(context.Background(), job.DocumentID)
	assert.ErrorIs(t, err, domain.ErrConflict, "solo un job FAILED_PERMANENTLY se puede re-encolar")
}

func TestJobsUseCase_RetryInexistente(t *testing.T) {
	uc := submission.NewJobsUseCase(&fakeQueue{})
	_, err := uc.Retry(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobsUseCase_ListFiltraPorEstado(t *testing.T) {
	q := &fakeQueue{}
	seedJob(q, time.Now())
	failed := seedJob(q, time.Now())
	failed.State = entity.JobStateFailed
	require.NoError(t, q.Update(context.Background(), failed))

	uc := submission.NewJobsUseCase(q)

	all, err := uc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyFailed, err := uc.List(context.Background(), entity.JobStateFailed)
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, failed.DocumentID, onlyFailed[0].DocumentID)
}
