package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/internal/domain/verifactu"
)

// defaultSequenceRetries si la config no fija otro presupuesto.
const defaultSequenceRetries = 3

// FinalizeUseCase ejecuta la emisión de un documento: la transición
// DRAFT → PENDING que asigna el consecutivo de la serie, calcula la huella
// encadenada y encola el envío a la agencia, todo en una sola transacción.
//
// La exclusión por serie la da el bloqueo de fila del contador: dos emisiones
// concurrentes de la misma serie se serializan ahí y reciben números densos
// distintos. Series diferentes no compiten entre sí. El bloqueo nunca se
// mantiene a través de una llamada de red: el envío es asíncrono vía cola.
type FinalizeUseCase struct {
	txRunner FinalizeTxRunner
	docRepo  repository.DocumentRepository
	hasher   *verifactu.Hasher
	encoder  PayloadEncoder
	cfg      BillingConfig
	log      zerolog.Logger
}

// NewFinalizeUseCase construye el caso de uso.
func NewFinalizeUseCase(
	txRunner FinalizeTxRunner,
	docRepo repository.DocumentRepository,
	hasher *verifactu.Hasher,
	encoder PayloadEncoder,
	cfg BillingConfig,
	log zerolog.Logger,
) *FinalizeUseCase {
	if cfg.SequenceRetries <= 0 {
		cfg.SequenceRetries = defaultSequenceRetries
	}
	return &FinalizeUseCase{
		txRunner: txRunner,
		docRepo:  docRepo,
		hasher:   hasher,
		encoder:  encoder,
		cfg:      cfg,
		log:      log,
	}
}

// Finalize emite el documento. O bien devuelve número + huella, o bien falla
// atómicamente y el documento sigue en borrador; nunca queda estado parcial
// de numeración o cadena visible.
func (uc *FinalizeUseCase) Finalize(ctx context.Context, ownerID, documentID string) (*dto.FinalizeResponse, error) {
	// Prevalidación fuera de la transacción: errores de validación se
	// devuelven síncronos y no consumen número.
	doc, err := uc.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	if !doc.IsDraft() {
		return nil, domain.ErrNotDraft
	}
	if !doc.CanFinalize() {
		return nil, domain.ErrValidation
	}

	var result *dto.FinalizeResponse
	for attempt := 1; ; attempt++ {
		result, err = uc.finalizeOnce(ctx, documentID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrSequenceConflict) {
			return nil, err
		}
		if attempt >= uc.cfg.SequenceRetries {
			// Fallar ruidosamente antes que saltarse un número en silencio.
			uc.log.Error().
				Str("document_id", documentID).
				Int("attempts", attempt).
				Msg("emisión abortada: conflictos de numeración persistentes")
			return nil, fmt.Errorf("%w tras %d intentos", domain.ErrSequenceExhausted, attempt)
		}
		uc.log.Warn().
			Str("document_id", documentID).
			Int("attempt", attempt).
			Msg("conflicto de numeración, reintentando emisión")
	}
}

// finalizeOnce es un intento de emisión: una transacción completa con los
// pasos asignar número → resolver huella anterior → calcular huella →
// persistir → avanzar contador → encolar envío.
func (uc *FinalizeUseCase) finalizeOnce(ctx context.Context, documentID string) (*dto.FinalizeResponse, error) {
	var resp *dto.FinalizeResponse

	err := uc.txRunner.RunFinalize(ctx, func(
		docs repository.DocumentRepository,
		counters repository.SeriesCounterRepository,
		jobs repository.SubmissionJobRepository,
	) error {
		// Releer con bloqueo de fila dentro de la transacción: el documento
		// pudo editarse, emitirse o borrarse entre la prevalidación y aquí.
		// El bloqueo congela el borrador mientras se numera y la
		// revalidación descarta cualquier edición que lo haya dejado sin
		// requisitos; la huella se calcula siempre sobre lo que se persiste.
		doc, err := docs.GetByIDForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return domain.ErrNotFound
		}
		if !doc.IsDraft() {
			return domain.ErrNotDraft
		}
		if !doc.CanFinalize() {
			return domain.ErrValidation
		}

		series := doc.Series()

		// 1) Consecutivo: bloqueo de fila del contador de la serie.
		counter, err := counters.LockAndGet(ctx, series)
		if err != nil {
			return err
		}
		number := counter.LastNumber + 1

		// 2) Huella anterior. Para el número 1 el centinela es la cadena
		// vacía; para cualquier otro número la ausencia de huella del
		// predecesor es un error fatal de integridad, no un eslabón vacío.
		prevDigest, err := uc.resolvePrevDigest(ctx, docs, counter, series, number)
		if err != nil {
			return err
		}

		// 3) Huella propia (cálculo puro, sin bloqueo adicional).
		now := time.Now()
		digest, err := uc.hasher.Digest(&verifactu.ChainParams{
			IssuerID:     uc.cfg.IssuerNIF,
			SeriesCode:   series.SeriesCode,
			Number:       number,
			IssueDate:    doc.IssueDate,
			DocumentType: doc.DocumentType,
			TaxTotal:     doc.TaxTotal,
			TotalAmount:  doc.TotalAmount,
			PrevDigest:   prevDigest,
			GeneratedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("calcular huella: %w", err)
		}

		// 4) Persistir emisión: número, huellas y estado en un solo UPDATE.
		doc.Number = number
		doc.Status = entity.StatusPending
		doc.ChainDigest = digest
		doc.PrevDigest = prevDigest
		doc.FinalizedAt = now
		doc.UpdatedAt = now
		if err := docs.Finalize(ctx, doc); err != nil {
			return err
		}

		// 5) Avanzar el contador bajo el mismo bloqueo.
		counter.LastNumber = number
		counter.LastDigest = digest
		if err := counters.Advance(ctx, counter); err != nil {
			return err
		}

		// 6) Encolar el envío. El payload se deriva solo de estado emitido y
		// persistido, así los reintentos reenvían bytes idénticos.
		payload, err := uc.encoder.Encode(doc)
		if err != nil {
			return fmt.Errorf("serializar payload de envío: %w", err)
		}
		job := &entity.SubmissionJob{
			ID:            uuid.New().String(),
			DocumentID:    doc.ID,
			Payload:       payload,
			State:         entity.JobStatePending,
			NextAttemptAt: now,
			EnqueuedAt:    now,
			UpdatedAt:     now,
		}
		if err := jobs.Enqueue(ctx, job); err != nil {
			return err
		}

		uc.log.Info().
			Str("document_id", doc.ID).
			Str("series", series.String()).
			Int64("number", number).
			Msg("documento emitido y envío encolado")

		resp = &dto.FinalizeResponse{
			ID:          doc.ID,
			SeriesCode:  series.SeriesCode,
			FiscalYear:  series.FiscalYear,
			Number:      number,
			ChainDigest: digest,
			PrevDigest:  prevDigest,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// resolvePrevDigest determina la huella del eslabón anterior de la serie.
func (uc *FinalizeUseCase) resolvePrevDigest(
	ctx context.Context,
	docs repository.DocumentRepository,
	counter *entity.SeriesCounter,
	series entity.FiscalSeries,
	number int64,
) (string, error) {
	if number == 1 {
		return "", nil
	}
	if counter.LastDigest != "" {
		return counter.LastDigest, nil
	}
	// Contador sin huella pero con números emitidos: recuperar la huella del
	// predecesor directamente del documento (ej. contador creado por una
	// migración). Si tampoco está ahí, la cadena está rota y se aborta.
	prev, err := docs.GetBySeriesAndNumber(ctx, series, number-1)
	if err != nil {
		return "", fmt.Errorf("%w: consultando documento %d de %s: %v",
			domain.ErrChainIntegrity, number-1, series, err)
	}
	if prev == nil || prev.ChainDigest == "" {
		return "", fmt.Errorf("%w: falta la huella del documento %d de %s",
			domain.ErrChainIntegrity, number-1, series)
	}
	return prev.ChainDigest, nil
}
