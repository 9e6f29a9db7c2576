package aeat

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// AppEnvTest es el identificador del ambiente de pruebas de la agencia.
	AppEnvTest = "test"
	// AppEnvProd es el identificador del ambiente de producción.
	AppEnvProd = "prod"
	// AppEnvDev es el identificador local: no envía al WS de la agencia.
	AppEnvDev = "dev"

	soapURLTest = "https://prewww1.aeat.es/wlpl/TIKE-CONT/ws/SistemaFacturacion/VerifactuSOAP"
	soapURLProd = "https://www1.agenciatributaria.gob.es/wlpl/TIKE-CONT/ws/SistemaFacturacion/VerifactuSOAP"

	soapNS         = "http://schemas.xmlsoap.org/soap/envelope/"
	soapActionBase = "urn:es:agencia:verifactu:"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// SubmitResult resultado de la entrega al WS de la agencia.
type SubmitResult struct {
	RegistryID string // CSV/identificador de registro devuelto por la agencia
	Accepted   bool   // true si la agencia aceptó el registro
	Errors     string // mensajes de error/rechazo (puede ser vacío)
}

// Submitter define el puerto de salida para la entrega de registros de
// facturación a la agencia. La implementación concreta usa SOAP; para tests
// se puede inyectar un mock.
type Submitter interface {
	// Submit envía el payload canónico del documento. env debe ser "test" o
	// "prod"; determina la URL del endpoint.
	Submit(ctx context.Context, canonicalPayload, env string) (*SubmitResult, error)
}

// ── Implementación SOAP ────────────────────────────────────────────────────────

// SOAPClient implementa Submitter contra el WS SOAP de la agencia.
// Usa net/http de la stdlib; no requiere librerías de terceros.
type SOAPClient struct {
	httpClient *http.Client
}

// NewSOAPClient construye el cliente con un timeout de red generoso (60 s)
// ya que el WS puede tardar varios segundos en responder.
func NewSOAPClient() *SOAPClient {
	return &SOAPClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"s:Envelope"`
	XmlnsS  string   `xml:"xmlns:s,attr"`
	Body    soapBody `xml:"s:Body"`
}

type soapBody struct {
	// RegistroFactura: payload canónico ya serializado; se inserta tal cual,
	// sin re-codificar, para preservar la forma C14N byte a byte.
	Registro rawXML `xml:",innerxml"`
}

// rawXML inserta XML pre-serializado sin escapado.
type rawXML string

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Respuesta *registroResponse `xml:"RespuestaRegFactuSistemaFacturacion"`
	Fault     *soapFault        `xml:"Fault"`
}

type registroResponse struct {
	EstadoEnvio string   `xml:"EstadoEnvio"` // "Correcto" | "Incorrecto"
	CSV         string   `xml:"CSV"`
	Errores     []string `xml:"RespuestaLinea>DescripcionErrorRegistro"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Submit ────────────────────────────────────────────────────────────────────

// Submit envía el registro al WS de la agencia y desempaqueta la respuesta.
func (c *SOAPClient) Submit(ctx context.Context, canonicalPayload, env string) (*SubmitResult, error) {
	var soapURL string
	switch env {
	case AppEnvProd:
		soapURL = soapURLProd
	case AppEnvTest:
		soapURL = soapURLTest
	default:
		return nil, fmt.Errorf("soap: entorno desconocido %q (usar 'test' o 'prod')", env)
	}

	envelope := soapEnvelope{
		XmlnsS: soapNS,
		Body:   soapBody{Registro: rawXML(canonicalPayload)},
	}
	xmlPayload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, soapURL,
		bytes.NewReader(xmlPayload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapActionBase+"RegFactuSistemaFacturacion")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("soap: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("soap: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("soap: leer respuesta: %w", err)
	}

	return c.parseResponse(rawBody)
}

// parseResponse desempaqueta la respuesta SOAP y extrae CSV y errores.
func (c *SOAPClient) parseResponse(rawBody []byte) (*SubmitResult, error) {
	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		// Si no podemos parsear, devolvemos el raw como error pero no abortamos.
		return &SubmitResult{
			Accepted: false,
			Errors:   fmt.Sprintf("no se pudo parsear respuesta SOAP: %s", string(rawBody)),
		}, nil
	}

	// SOAP Fault (error de protocolo, autenticación, etc.)
	if envResp.Body.Fault != nil {
		return &SubmitResult{
			Accepted: false,
			Errors:   fmt.Sprintf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString),
		}, nil
	}

	r := envResp.Body.Respuesta
	if r == nil {
		return &SubmitResult{
			Accepted: false,
			Errors:   "respuesta SOAP vacía o inesperada: " + string(rawBody),
		}, nil
	}

	return &SubmitResult{
		RegistryID: r.CSV,
		Accepted:   strings.EqualFold(r.EstadoEnvio, "Correcto"),
		Errors:     strings.Join(r.Errores, "; "),
	}, nil
}
