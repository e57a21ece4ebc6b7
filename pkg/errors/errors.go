package errors

import (
	"fmt"
	"net/http"
)

// Error codes exposed on the wire. Signature failures keep the verifier's
// reason string as their code so the agent can distinguish them.
const (
	CodeInvalidPayload         = "invalid_payload"
	CodePayloadTooLarge        = "payload_too_large"
	CodeMissingSignatureHeader = "missing_signature_headers"
	CodeInvalidTimestamp       = "invalid_timestamp"
	CodeTimestampOutOfWindow   = "timestamp_out_of_window"
	CodeMissingServerSecret    = "missing_server_secret"
	CodeSignatureMismatch      = "signature_mismatch"
	CodeAuditTierMismatch      = "audit_tier_mismatch"
	CodeNotFound               = "not_found"
	CodeInvalidState           = "invalid_state"
	CodeOptimisticLockConflict = "optimistic_lock_conflict"
	CodeSentinelFault          = "sentinel_fault"
)

// FaultMessage is the only text a caller ever sees for an unclassified
// failure. Full detail stays in the server log.
const FaultMessage = "System fault. Active recovery initiated."

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func InvalidPayload(message string) *AppError {
	return New(CodeInvalidPayload, message, http.StatusBadRequest)
}

func PayloadTooLarge() *AppError {
	return New(CodePayloadTooLarge, "payload too large", http.StatusRequestEntityTooLarge)
}

// SignatureFailure maps a verifier reason onto the 403 it always carries.
func SignatureFailure(reason string) *AppError {
	return New(reason, "Unauthorized AI Agent request", http.StatusForbidden)
}

func AuditTierMismatch() *AppError {
	return New(CodeAuditTierMismatch, "Audit tier mismatch", http.StatusForbidden)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NotFoundWithID(resource, id string) *AppError {
	return NotFound(resource).WithDetails(map[string]any{
		"resource": resource,
		"id":       id,
	})
}

func InvalidState(message string) *AppError {
	return New(CodeInvalidState, message, http.StatusConflict)
}

func OptimisticLockConflict() *AppError {
	return New(CodeOptimisticLockConflict, "Approval version conflict", http.StatusConflict)
}

// Internal wraps an unclassified fault. The wrapped error is logged
// server-side and never serialized to the caller.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeSentinelFault,
		Message:    FaultMessage,
		HTTPStatus: http.StatusInternalServerError,
		Err:        fmt.Errorf("%s: %w", message, err),
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return &AppError{
		Code:       CodeSentinelFault,
		Message:    FaultMessage,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
