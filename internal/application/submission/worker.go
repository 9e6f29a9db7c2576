package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/internal/infrastructure/aeat"
)

// maxBackoffShift acota el backoff exponencial: con la base por defecto de
// 5 s el tope queda en algo más de 91 horas entre intentos.
const maxBackoffShift = 16

// WorkerConfig parámetros del consumidor de la cola de envíos.
type WorkerConfig struct {
	PollInterval time.Duration // cadencia de sondeo de la cola
	BaseDelay    time.Duration // primer backoff; se duplica en cada intento
	MaxAttempts  int           // intentos totales antes de FAILED_PERMANENTLY
	Env          string        // dev | test | prod (dev no llama al WS real)
}

// DefaultWorkerConfig devuelve la configuración por defecto: reintento a los
// 5 s, luego 10 s, 20 s... hasta 5 intentos.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 2 * time.Second,
		BaseDelay:    5 * time.Second,
		MaxAttempts:  5,
		Env:          aeat.AppEnvDev,
	}
}

// Worker es el consumidor único de la cola de envíos. Procesa los jobs de
// uno en uno y en orden de encolado, de modo que los documentos llegan a la
// agencia en el mismo orden en que se emitieron; el remoto valida la cadena
// de huellas y un adelantamiento sería rechazado. Corre en su propia
// goroutine, desacoplado de la latencia de las peticiones HTTP.
type Worker struct {
	jobs      repository.SubmissionJobRepository
	submitter aeat.Submitter // nil en dev
	cfg       WorkerConfig
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker construye el worker. submitter puede ser nil: en ese caso solo
// el modo dev funciona (entrega simulada).
func NewWorker(jobs repository.SubmissionJobRepository, submitter aeat.Submitter, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{jobs: jobs, submitter: submitter, cfg: cfg, log: log}
}

// Start arranca el bucle de consumo en background.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.processLoop(ctx)

	w.log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("max_attempts", w.cfg.MaxAttempts).
		Str("env", w.cfg.Env).
		Msg("worker de envíos iniciado")
}

// Stop detiene el worker y espera a que el intento en curso termine. Un
// intento en vuelo no se cancela: corre hasta completarse o fallar.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.log.Info().Msg("worker de envíos detenido")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) processLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drenar todo lo exigible antes de volver a dormir.
			for {
				processed, err := w.ProcessNext(ctx)
				if err != nil {
					w.log.Error().Err(err).Msg("error consultando la cola de envíos")
					break
				}
				if !processed || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessNext toma el siguiente job exigible y ejecuta un intento de entrega.
// Devuelve false si la cola no tiene trabajo vencido.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.jobs.NextDue(ctx, time.Now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.attempt(ctx, job)
	return true, nil
}

// attempt ejecuta un intento de entrega y persiste su resultado: SUCCEEDED,
// nueva cita de reintento con backoff exponencial, o FAILED_PERMANENTLY si se
// agotó el presupuesto. El documento origen nunca se revierte: la validez
// fiscal local y el acuse remoto son preocupaciones separadas.
func (w *Worker) attempt(ctx context.Context, job *entity.SubmissionJob) {
	job.AttemptCount++

	deliveryErr := w.deliver(ctx, job)
	now := time.Now()
	job.UpdatedAt = now

	if deliveryErr == nil {
		job.State = entity.JobStateSucceeded
		job.LastError = ""
		if err := w.jobs.Update(ctx, job); err != nil {
			w.log.Error().Err(err).Str("document_id", job.DocumentID).
				Msg("no se pudo persistir el job como SUCCEEDED")
			return
		}
		w.log.Info().
			Str("document_id", job.DocumentID).
			Int("attempts", job.AttemptCount).
			Msg("documento entregado a la agencia")
		return
	}

	job.LastError = deliveryErr.Error()

	if job.AttemptCount >= w.cfg.MaxAttempts {
		job.State = entity.JobStateFailed
		// El último error queda marcado como definitivo: es lo que ve el
		// operador al listar la cola antes de decidir un reintento manual.
		job.LastError = fmt.Sprintf("%s: %s", domain.ErrDeliveryPermanent, deliveryErr)
		if err := w.jobs.Update(ctx, job); err != nil {
			w.log.Error().Err(err).Str("document_id", job.DocumentID).
				Msg("no se pudo persistir el job como FAILED_PERMANENTLY")
			return
		}
		// Señal operacional, no fallo de usuario: el documento sigue emitido.
		w.log.Error().
			Str("document_id", job.DocumentID).
			Int("attempts", job.AttemptCount).
			Str("last_error", job.LastError).
			Msg("entrega fallida permanentemente tras agotar reintentos")
		return
	}

	// Backoff exponencial: base, 2·base, 4·base... El desplazamiento se
	// satura para que un presupuesto de intentos muy alto no desborde
	// time.Duration.
	shift := job.AttemptCount - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	delay := w.cfg.BaseDelay << shift
	job.NextAttemptAt = now.Add(delay)
	if err := w.jobs.Update(ctx, job); err != nil {
		w.log.Error().Err(err).Str("document_id", job.DocumentID).
			Msg("no se pudo reprogramar el job")
		return
	}
	w.log.Warn().
		Str("document_id", job.DocumentID).
		Int("attempt", job.AttemptCount).
		Dur("retry_in", delay).
		Str("error", job.LastError).
		Msg("entrega fallida, reintento programado")
}

// domainDeliveryError envuelve un fallo de entrega en domain.ErrDelivery.
func domainDeliveryError(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrDelivery, msg)
}

// deliver ejecuta la llamada remota (o la simula en dev).
func (w *Worker) deliver(ctx context.Context, job *entity.SubmissionJob) error {
	if w.cfg.Env == aeat.AppEnvDev || w.cfg.Env == "" {
		// Modo desarrollo: no hay WS al que llamar; entrega simulada.
		w.log.Debug().Str("document_id", job.DocumentID).
			Msg("[DEV] entrega simulada a la agencia")
		return nil
	}
	if w.submitter == nil {
		return domainDeliveryError("submitter no inyectado para entorno " + w.cfg.Env)
	}
	result, err := w.submitter.Submit(ctx, job.Payload, w.cfg.Env)
	if err != nil {
		return domainDeliveryError(err.Error())
	}
	if !result.Accepted {
		return domainDeliveryError("rechazado por la agencia: " + result.Errors)
	}
	return nil
}
