package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	"github.com/tu-usuario/facturacion-pro/internal/application/submission"
	"github.com/tu-usuario/facturacion-pro/internal/domain"
)

// SubmissionHandler expone el estado de la cola de envíos VERI*FACTU
// y la reactivación manual de trabajos fallidos.
type SubmissionHandler struct {
	jobs *submission.JobsUseCase
}

// NewSubmissionHandler construye el handler.
func NewSubmissionHandler(jobs *submission.JobsUseCase) *SubmissionHandler {
	return &SubmissionHandler{jobs: jobs}
}

// List lista los trabajos de envío, opcionalmente filtrados por estado.
// GET /api/submissions?state=FAILED_PERMANENTLY
func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	out, err := h.jobs.List(c.Context(), c.Query("state"))
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(out)
}

// Retry reencola un trabajo marcado FAILED_PERMANENTLY.
// POST /api/submissions/:documentId/retry
func (h *SubmissionHandler) Retry(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return mapDomainError(c, domain.ErrUnauthorized)
	}
	documentID := c.Params("documentId")
	if documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "documentId requerido"})
	}
	job, err := h.jobs.Retry(c.Context(), documentID)
	if err != nil {
		return mapDomainError(c, err)
	}
	return c.JSON(job)
}
