package handler

import (
	"errors"
	"io"
	"net/http"

	"sentinel/internal/appointments/service"
	"sentinel/internal/appointments/validator"
	apperrors "sentinel/pkg/errors"
	httputil "sentinel/pkg/http"
	"sentinel/pkg/logger"
	"sentinel/pkg/middleware"
	"sentinel/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AppointmentHandler struct {
	service   service.AppointmentService
	validator *validator.CommandValidator
	log       *logger.Logger
}

func NewAppointmentHandler(service service.AppointmentService, v *validator.CommandValidator, log *logger.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		service:   service,
		validator: v,
		log:       log,
	}
}

// AgentAction handles book, cancel and modify commands from the AI agent.
// The signature middleware has already verified the request; this handler
// re-checks that the payload's declared tier matches the verified one.
func (h *AppointmentHandler) AgentAction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "AgentAction", apperrors.InvalidPayload("failed to read request body"))
		return
	}

	cmd, err := h.validator.ParseAgentCommand(body)
	if err != nil {
		h.writeValidationError(w, "AgentAction", err)
		return
	}

	if verifiedTier := middleware.VerifiedTier(r.Context()); cmd.AuditTier != verifiedTier {
		h.log.Warn("Audit tier mismatch",
			"verified_tier", verifiedTier,
			"payload_tier", cmd.AuditTier,
		)
		h.writeError(w, "AgentAction", apperrors.AuditTierMismatch())
		return
	}

	result, err := h.service.HandleAgentAction(r.Context(), cmd)
	if err != nil {
		h.writeError(w, "AgentAction", err)
		return
	}

	status := http.StatusOK
	if result.Status == model.ResultPendingApproval {
		status = http.StatusAccepted
	}

	if err := httputil.WriteJSON(w, status, result); err != nil {
		h.log.Error("failed to write JSON response", "handler", "AgentAction", "operation", "WriteJSON", "error", err)
	}
}

// Approve applies a reviewer's decision to a pending appointment.
func (h *AppointmentHandler) Approve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "Approve", apperrors.InvalidPayload("failed to read request body"))
		return
	}

	decision, err := h.validator.ParseApprovalDecision(body)
	if err != nil {
		h.writeValidationError(w, "Approve", err)
		return
	}

	result, err := h.service.ResolveApproval(r.Context(), decision)
	if err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	if err := httputil.WriteJSON(w, http.StatusOK, result); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Approve", "operation", "WriteJSON", "error", err)
	}
}

func (h *AppointmentHandler) writeValidationError(w http.ResponseWriter, handlerName string, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		appErr := apperrors.InvalidPayload("Request validation failed").WithDetails(map[string]any{
			"validation_errors": validationErrs,
		})
		h.writeError(w, handlerName, appErr)
		return
	}
	h.writeError(w, handlerName, err)
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.Code == apperrors.CodeSentinelFault {
		h.log.Error("Sentinel fault",
			"handler", handlerName,
			"error", appErr.Err,
		)
	}
	if writeErr := httputil.WriteError(w, appErr); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

// RegisterAgentRoutes mounts the signature-protected agent surface.
func (h *AppointmentHandler) RegisterAgentRoutes(router *httprouter.Router) {
	router.POST("/api/v1/agent/actions", h.AgentAction)
}

// RegisterApprovalRoutes mounts the reviewer surface, which is not
// signature-verified.
func (h *AppointmentHandler) RegisterApprovalRoutes(router *httprouter.Router) {
	router.POST("/api/v1/approvals", h.Approve)
}
