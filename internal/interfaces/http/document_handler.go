package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
	"github.com/tu-usuario/facturacion-pro/internal/domain/entity"
)

// DocumentHandler maneja las peticiones HTTP de documentos fiscales (protegido).
type DocumentHandler struct {
	docs     *billing.DocumentUseCase
	finalize *billing.FinalizeUseCase
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(docs *billing.DocumentUseCase, finalize *billing.FinalizeUseCase) *DocumentHandler {
	return &DocumentHandler{docs: docs, finalize: finalize}
}

// Create crea un borrador de documento.
// POST /api/documents
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	doc, err := h.docs.CreateDraft(c.Context(), userID, in)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// Update modifica un borrador. Los documentos finalizados son inmutables.
// PUT /api/documents/:id
func (h *DocumentHandler) Update(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	var in dto.UpdateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	doc, err := h.docs.UpdateDraft(c.Context(), userID, id, in)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(doc)
}

// Delete borra lógicamente un borrador.
// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	if err := h.docs.Delete(c.Context(), userID, id); err != nil {
		return mapDomainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetByID obtiene el detalle completo de un documento.
// GET /api/documents/:id
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	doc, err := h.docs.GetByID(c.Context(), userID, id)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(doc)
}

// Finalize asigna número de serie, calcula la huella y encola el envío.
// POST /api/documents/:id/finalize
func (h *DocumentHandler) Finalize(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	out, err := h.finalize.Finalize(c.Context(), userID, id)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(out)
}

// Status devuelve el estado del documento y de su envío si existe.
// GET /api/documents/:id/status
func (h *DocumentHandler) Status(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	st, err := h.docs.Status(c.Context(), userID, id)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(st)
}

// MarkPaid marca como pagado un documento pendiente.
// POST /api/documents/:id/paid
func (h *DocumentHandler) MarkPaid(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	if err := h.docs.MarkPaid(c.Context(), userID, id); err != nil {
		return mapDomainError(c, err)
	}
	st, err := h.docs.Status(c.Context(), userID, id)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(st)
}

// VerifyChain recorre la serie completa y comprueba numeración densa y huellas.
// GET /api/series/:type/:code/:year/verify
func (h *DocumentHandler) VerifyChain(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	year, err := strconv.Atoi(c.Params("year"))
	if err != nil || year <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "ejercicio fiscal inválido"})
	}
	series := entity.FiscalSeries{
		DocumentType: c.Params("type"),
		SeriesCode:   c.Params("code"),
		FiscalYear:   year,
	}
	out, err := h.docs.VerifyChain(c.Context(), series)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(out)
}

// mapDomainError traduce errores de dominio a respuestas HTTP.
func mapDomainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrNotDraft):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NOT_DRAFT", Message: "el documento no es un borrador"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrSequenceExhausted):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "SEQUENCE_CONFLICT", Message: "conflicto de numeración, reintente la operación"})
	case errors.Is(err, domain.ErrChainIntegrity):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CHAIN_INTEGRITY", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
