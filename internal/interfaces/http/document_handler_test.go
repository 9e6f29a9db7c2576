package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturacion-pro/internal/application/dto"
	apphttp "github.com/tu-usuario/facturacion-pro/internal/interfaces/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tests de handlers sin identidad
// ──────────────────────────────────────────────────────────────────────────────

// Una petición que llega al handler sin user_id en el contexto (middleware
// ausente o mal configurado) debe responder 401 con el código UNAUTHORIZED,
// nunca seguir hasta el caso de uso.
func TestDocumentHandler_SinIdentidad_Retorna401(t *testing.T) {
	h := apphttp.NewDocumentHandler(nil, nil)
	app := fiber.New()
	app.Get("/documents/:id", h.GetByID)

	req := httptest.NewRequest(http.MethodGet, "/documents/abc", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body.Code)
}

func TestSubmissionHandler_SinIdentidad_Retorna401(t *testing.T) {
	h := apphttp.NewSubmissionHandler(nil)
	app := fiber.New()
	app.Get("/submissions", h.List)

	req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body.Code)
}
