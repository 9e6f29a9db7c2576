package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
	"github.com/tu-usuario/facturacion-pro/internal/domain/repository"
	"github.com/tu-usuario/facturacion-pro/internal/domain/verifactu"
)

// DocumentUseCase cubre el ciclo de vida previo y posterior a la emisión:
// borradores (crear, editar, borrar), cobro (PENDING→PAID), consulta de
// estado y verificación de la cadena de una serie. La emisión en sí vive en
// FinalizeUseCase.
type DocumentUseCase struct {
	docRepo repository.DocumentRepository
	hasher  *verifactu.Hasher
	cfg     BillingConfig
}

// NewDocumentUseCase construye el caso de uso.
func NewDocumentUseCase(docRepo repository.DocumentRepository, hasher *verifactu.Hasher, cfg BillingConfig) *DocumentUseCase {
	return &DocumentUseCase{docRepo: docRepo, hasher: hasher, cfg: cfg}
}

// CreateDraft crea un documento en borrador: sin número, sin huella. Los
// totales se derivan de las líneas en el momento de crear.
func (uc *DocumentUseCase) CreateDraft(ctx context.Context, ownerID string, in dto.CreateDocumentRequest) (*dto.DocumentResponse, error) {
	if !entity.ValidDocType(in.DocumentType) || in.SeriesCode == "" {
		return nil, domain.ErrInvalidInput
	}
	issueDate := time.Now()
	if in.IssueDate != "" {
		d, err := time.Parse("2006-01-02", in.IssueDate)
		if err != nil {
			return nil, domain.ErrInvalidInput
		}
		issueDate = d
	}
	var dueDate time.Time
	if in.DueDate != "" {
		d, err := time.Parse("2006-01-02", in.DueDate)
		if err != nil {
			return nil, domain.ErrInvalidInput
		}
		dueDate = d
	}
	fiscalYear := in.FiscalYear
	if fiscalYear == 0 {
		fiscalYear = issueDate.Year()
	}

	now := time.Now()
	doc := &entity.Document{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		DocumentType: in.DocumentType,
		SeriesCode:   in.SeriesCode,
		FiscalYear:   fiscalYear,
		Status:       entity.StatusDraft,
		ClientName:   in.ClientName,
		ClientNIF:    in.ClientNIF,
		IssueDate:    issueDate,
		DueDate:      dueDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, l := range in.Lines {
		if err := appendLine(doc, l); err != nil {
			return nil, err
		}
	}
	doc.RecomputeTotals()

	if err := uc.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return toDocumentResponse(doc), nil
}

// UpdateDraft edita un borrador. Un documento emitido es inmutable salvo las
// transiciones de estado explícitas, así que aquí cualquier estado distinto
// de DRAFT es ErrNotDraft.
func (uc *DocumentUseCase) UpdateDraft(ctx context.Context, ownerID, id string, in dto.UpdateDocumentRequest) (*dto.DocumentResponse, error) {
	doc, err := uc.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsDraft() {
		return nil, domain.ErrNotDraft
	}

	if in.SeriesCode != "" {
		doc.SeriesCode = in.SeriesCode
	}
	if in.ClientName != "" {
		doc.ClientName = in.ClientName
	}
	if in.ClientNIF != "" {
		doc.ClientNIF = in.ClientNIF
	}
	if in.DueDate != "" {
		d, err := time.Parse("2006-01-02", in.DueDate)
		if err != nil {
			return nil, domain.ErrInvalidInput
		}
		doc.DueDate = d
	}
	if in.Lines != nil {
		doc.Lines = nil
		for _, l := range in.Lines {
			if err := appendLine(doc, l); err != nil {
				return nil, err
			}
		}
	}
	doc.RecomputeTotals()
	doc.UpdatedAt = time.Now()

	if err := uc.docRepo.UpdateDraft(ctx, doc); err != nil {
		return nil, err
	}
	return toDocumentResponse(doc), nil
}

// Delete borra un documento. Para borradores es un borrado sin más huella;
// para documentos emitidos es lógico: el número y la huella siguen
// consumidos en la serie y el documento sigue siendo eslabón de la cadena.
func (uc *DocumentUseCase) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := uc.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	return uc.docRepo.LogicalDelete(ctx, doc.ID)
}

// MarkPaid registra el cobro: PENDING→PAID. No toca numeración, huellas,
// líneas ni importes.
func (uc *DocumentUseCase) MarkPaid(ctx context.Context, ownerID, id string) error {
	doc, err := uc.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if doc.Status != entity.StatusPending {
		return domain.ErrConflict
	}
	return uc.docRepo.SetStatus(ctx, doc.ID, entity.StatusPaid)
}

// GetByID obtiene un documento completo.
func (uc *DocumentUseCase) GetByID(ctx context.Context, ownerID, id string) (*dto.DocumentResponse, error) {
	doc, err := uc.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return toDocumentResponse(doc), nil
}

// Status devuelve solo el estado de ciclo de vida (consulta ligera).
func (uc *DocumentUseCase) Status(ctx context.Context, ownerID, id string) (*dto.StatusResponse, error) {
	doc, err := uc.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return &dto.StatusResponse{ID: doc.ID, Status: doc.Status, Number: doc.Number}, nil
}

// VerifyChain recorre los documentos emitidos de una serie en orden numérico
// y recomputa cada huella desde los campos persistidos. Reporta el primer
// eslabón que no verifica: ahí está la edición o el borrado retroactivo.
func (uc *DocumentUseCase) VerifyChain(ctx context.Context, series entity.FiscalSeries) (*dto.ChainVerifyResponse, error) {
	docs, err := uc.docRepo.ListFinalizedBySeries(ctx, series)
	if err != nil {
		return nil, err
	}

	resp := &dto.ChainVerifyResponse{Series: series.String(), Documents: len(docs), Valid: true}
	prevDigest := ""
	var expected int64 = 1
	for _, d := range docs {
		if d.Number != expected {
			resp.Valid = false
			resp.FirstBroken = expected
			resp.Detail = fmt.Sprintf("hueco en la numeración: falta el número %d", expected)
			return resp, nil
		}
		if d.PrevDigest != prevDigest {
			resp.Valid = false
			resp.FirstBroken = d.Number
			resp.Detail = "la huella anterior almacenada no coincide con la del eslabón previo"
			return resp, nil
		}
		recomputed, err := uc.hasher.Digest(&verifactu.ChainParams{
			IssuerID:     uc.cfg.IssuerNIF,
			SeriesCode:   series.SeriesCode,
			Number:       d.Number,
			IssueDate:    d.IssueDate,
			DocumentType: d.DocumentType,
			TaxTotal:     d.TaxTotal,
			TotalAmount:  d.TotalAmount,
			PrevDigest:   d.PrevDigest,
			GeneratedAt:  d.FinalizedAt,
		})
		if err != nil {
			return nil, err
		}
		if recomputed != d.ChainDigest {
			resp.Valid = false
			resp.FirstBroken = d.Number
			resp.Detail = "la huella recomputada no coincide con la almacenada"
			return resp, nil
		}
		prevDigest = d.ChainDigest
		expected++
	}
	return resp, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (uc *DocumentUseCase) getOwned(ctx context.Context, ownerID, id string) (*entity.Document, error) {
	doc, err := uc.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, domain.ErrNotFound
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return doc, nil
}

func appendLine(doc *entity.Document, in dto.ServiceLineRequest) error {
	if in.Concept == "" || in.Quantity.Sign() <= 0 || in.UnitAmount.Sign() < 0 {
		return domain.ErrInvalidInput
	}
	doc.Lines = append(doc.Lines, &entity.ServiceLine{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		Concept:     in.Concept,
		Quantity:    in.Quantity,
		UnitAmount:  in.UnitAmount,
		DiscountPct: in.DiscountPct,
		TaxPct:      in.TaxPct,
	})
	return nil
}

func toDocumentResponse(doc *entity.Document) *dto.DocumentResponse {
	resp := &dto.DocumentResponse{
		ID:           doc.ID,
		DocumentType: doc.DocumentType,
		SeriesCode:   doc.SeriesCode,
		FiscalYear:   doc.FiscalYear,
		Number:       doc.Number,
		Status:       doc.Status,
		ClientName:   doc.ClientName,
		ClientNIF:    doc.ClientNIF,
		IssueDate:    doc.IssueDate.Format("2006-01-02"),
		TaxTotal:     doc.TaxTotal,
		TotalAmount:  doc.TotalAmount,
		ChainDigest:  doc.ChainDigest,
		PrevDigest:   doc.PrevDigest,
		Lines:        make([]dto.ServiceLineResponse, 0, len(doc.Lines)),
	}
	if !doc.DueDate.IsZero() {
		resp.DueDate = doc.DueDate.Format("2006-01-02")
	}
	for _, l := range doc.Lines {
		resp.Lines = append(resp.Lines, dto.ServiceLineResponse{
			ID:          l.ID,
			Concept:     l.Concept,
			Quantity:    l.Quantity,
			UnitAmount:  l.UnitAmount,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
			LineTotal:   l.LineTotal,
		})
	}
	return resp
}
