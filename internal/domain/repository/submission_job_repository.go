package repository

import (
	"context"
	"time"

	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// SubmissionJobRepository define el puerto de la cola durable de envíos.
// La cola vive en la base de datos: un job encolado en la transacción de
// emisión sobrevive a reinicios del proceso y sus reintentos no se pierden.
type SubmissionJobRepository interface {
	// Enqueue inserta el job en estado PENDING. Se llama exactamente una vez
	// por emisión, dentro de la misma transacción que persiste el documento.
	Enqueue(ctx context.Context, job *entity.SubmissionJob) error

	// NextDue devuelve el job PENDING más antiguo (orden de encolado) si su
	// next_attempt_at ya venció, o nil, nil si no hay trabajo exigible. Un
	// job en backoff bloquea a los posteriores a propósito: la entrega debe
	// respetar el orden de emisión porque el remoto valida la cadena. El
	// worker es único, así que no hace falta reclamar el job con bloqueo.
	NextDue(ctx context.Context, now time.Time) (*entity.SubmissionJob, error)

	// Update persiste el resultado de un intento: contador, próxima cita de
	// reintento, estado terminal y último error.
	Update(ctx context.Context, job *entity.SubmissionJob) error

	GetByDocumentID(ctx context.Context, documentID string) (*entity.SubmissionJob, error)

	// List devuelve los jobs en el estado dado, o todos si state es vacío,
	// ordenados por fecha de encolado.
	List(ctx context.Context, state string) ([]*entity.SubmissionJob, error)
}
