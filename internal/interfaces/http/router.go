package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-pro/internal/application/billing"
	"github.com/tu-usuario/facturacion-pro/internal/application/submission"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	DocumentUC *billing.DocumentUseCase
	FinalizeUC *billing.FinalizeUseCase
	JobsUC     *submission.JobsUseCase
	JWTSecret  string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Documentos fiscales (protegido)
	documents := protected.Group("/documents")
	documentHandler := NewDocumentHandler(deps.DocumentUC, deps.FinalizeUC)
	documents.Post("/", documentHandler.Create)
	documents.Get("/:id", documentHandler.GetByID)
	documents.Put("/:id", documentHandler.Update)
	documents.Delete("/:id", documentHandler.Delete)
	documents.Post("/:id/finalize", documentHandler.Finalize)
	documents.Post("/:id/paid", documentHandler.MarkPaid)
	documents.Get("/:id/status", documentHandler.Status)

	// Verificación de cadena por serie (protegido)
	series := protected.Group("/series")
	series.Get("/:type/:code/:year/verify", documentHandler.VerifyChain)

	// Cola de envíos VERI*FACTU (protegido)
	submissions := protected.Group("/submissions")
	submissionHandler := NewSubmissionHandler(deps.JobsUC)
	submissions.Get("/", submissionHandler.List)
	submissions.Post("/:documentId/retry", submissionHandler.Retry)
}
