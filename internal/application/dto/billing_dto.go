package dto

import "github.com/shopspring/decimal"

// ServiceLineRequest línea de servicio en creación/edición de borradores.
type ServiceLineRequest struct {
	Concept     string          `json:"concept"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	TaxPct      decimal.Decimal `json:"tax_pct"`
}

// CreateDocumentRequest body para POST /api/documents. Crea un borrador:
// sin número, sin huella.
type CreateDocumentRequest struct {
	DocumentType string               `json:"document_type"`
	SeriesCode   string               `json:"series_code"`
	FiscalYear   int                  `json:"fiscal_year,omitempty"` // 0 = año de la fecha de emisión
	ClientName   string               `json:"client_name"`
	ClientNIF    string               `json:"client_nif"`
	IssueDate    string               `json:"issue_date,omitempty"` // YYYY-MM-DD; vacío = hoy
	DueDate      string               `json:"due_date,omitempty"`
	Lines        []ServiceLineRequest `json:"lines"`
}

// UpdateDocumentRequest body para PUT /api/documents/:id (solo borradores).
type UpdateDocumentRequest struct {
	SeriesCode string               `json:"series_code,omitempty"`
	ClientName string               `json:"client_name,omitempty"`
	ClientNIF  string               `json:"client_nif,omitempty"`
	DueDate    string               `json:"due_date,omitempty"`
	Lines      []ServiceLineRequest `json:"lines,omitempty"`
}

// ServiceLineResponse línea en respuestas.
type ServiceLineResponse struct {
	ID          string          `json:"id"`
	Concept     string          `json:"concept"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	TaxPct      decimal.Decimal `json:"tax_pct"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// DocumentResponse documento con detalle completo.
type DocumentResponse struct {
	ID           string                `json:"id"`
	DocumentType string                `json:"document_type"`
	SeriesCode   string                `json:"series_code,omitempty"`
	FiscalYear   int                   `json:"fiscal_year"`
	Number       int64                 `json:"number,omitempty"` // 0 mientras es borrador
	Status       string                `json:"status"`
	ClientName   string                `json:"client_name"`
	ClientNIF    string                `json:"client_nif"`
	IssueDate    string                `json:"issue_date"`
	DueDate      string                `json:"due_date,omitempty"`
	TaxTotal     decimal.Decimal       `json:"tax_total"`
	TotalAmount  decimal.Decimal       `json:"total_amount"`
	ChainDigest  string                `json:"chain_digest,omitempty"`
	PrevDigest   string                `json:"previous_digest,omitempty"`
	Lines        []ServiceLineResponse `json:"lines"`
}

// FinalizeResponse resultado de POST /api/documents/:id/finalize.
type FinalizeResponse struct {
	ID          string `json:"id"`
	SeriesCode  string `json:"series_code"`
	FiscalYear  int    `json:"fiscal_year"`
	Number      int64  `json:"number"`
	ChainDigest string `json:"chain_digest"`
	PrevDigest  string `json:"previous_digest"`
}

// StatusResponse estado de ciclo de vida para GET /api/documents/:id/status.
type StatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Number int64  `json:"number,omitempty"`
}

// ChainVerifyResponse resultado de recomputar la cadena de una serie.
type ChainVerifyResponse struct {
	Series      string `json:"series"`
	Documents   int    `json:"documents"`
	Valid       bool   `json:"valid"`
	FirstBroken int64  `json:"first_broken_number,omitempty"` // primer número cuya huella no verifica
	Detail      string `json:"detail,omitempty"`
}

// SubmissionJobResponse job de envío para el panel de operación.
type SubmissionJobResponse struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	State         string `json:"state"`
	AttemptCount  int    `json:"attempt_count"`
	NextAttemptAt string `json:"next_attempt_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	EnqueuedAt    string `json:"enqueued_at"`
}
