package entity

import "time"

// Estados terminales de un job de envío a la agencia tributaria.
const (
	JobStatePending   = "PENDING"
	JobStateSucceeded = "SUCCEEDED"
	JobStateFailed    = "FAILED_PERMANENTLY"
)

// SubmissionJob representa "entregar este documento emitido al servicio de
// la agencia". Se crea exactamente una vez por emisión, dentro de la misma
// transacción, y sobrevive a reinicios del proceso. En SUCCEEDED se archiva;
// en FAILED_PERMANENTLY se retiene con los metadatos del fallo y puede
// re-encolarse manualmente.
type SubmissionJob struct {
	ID            string
	DocumentID    string
	Payload       string // representación canónica serializada del documento
	State         string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	EnqueuedAt    time.Time
	UpdatedAt     time.Time
}
