package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// ErrValidation: el documento borrador no cumple los requisitos fiscales
	// para emitirse (sin líneas, sin cliente, etc.). Se devuelve síncrono al
	// caller y no deja ningún estado persistido.
	ErrValidation = errors.New("el documento no cumple los requisitos para emitirse")

	// ErrNotDraft: se intentó modificar o emitir un documento que ya no está
	// en borrador. Los campos de numeración y huella son write-once.
	ErrNotDraft = errors.New("el documento ya no está en borrador")

	// ErrSequenceConflict: colisión al asignar el consecutivo de la serie.
	// Retryable; no debe escapar al caller mientras quede presupuesto de
	// reintentos.
	ErrSequenceConflict = errors.New("conflicto al asignar número de serie")

	// ErrSequenceExhausted: se agotaron los reintentos de asignación. Fatal:
	// la emisión falla y el documento permanece en borrador.
	ErrSequenceExhausted = errors.New("reintentos de numeración agotados")

	// ErrChainIntegrity: no se pudo recuperar la huella del documento
	// anterior de la serie para un número > 1. Encadenar contra cadena vacía
	// ocultaría una manipulación, así que la emisión aborta.
	ErrChainIntegrity = errors.New("integridad de la cadena de huellas comprometida")

	// ErrDelivery: fallo transitorio entregando el documento al servicio de
	// la agencia tributaria. El worker lo reintenta con backoff.
	ErrDelivery = errors.New("error entregando el documento a la agencia")

	// ErrDeliveryPermanent: reintentos de entrega agotados. El job queda
	// retenido con sus metadatos de fallo; el documento no se revierte.
	ErrDeliveryPermanent = errors.New("entrega a la agencia fallida permanentemente")
)
