package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sentinel/pkg/logger"
	"sentinel/pkg/model"
	"sentinel/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
)

var (
	phoneRegex = regexp.MustCompile(`^[+0-9()\-.\s]+$`)
)

const (
	defaultAuditTier       = "tier2"
	defaultDurationMinutes = 60
	defaultReviewer        = "toney"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

func fieldError(field, message string) ValidationErrors {
	return ValidationErrors{ValidationError{Field: field, Message: message}}
}

type agentCommandDTO struct {
	Action                 string     `json:"action" validate:"required,min=3,max=10"`
	AgentRequestID         string     `json:"agentRequestId" validate:"omitempty,max=120"`
	AuditTier              string     `json:"auditTier" validate:"omitempty,min=4,max=20"`
	ConfirmationWebhookURL string     `json:"confirmationWebhookUrl" validate:"omitempty,url,max=500"`
	Notes                  string     `json:"notes" validate:"omitempty,max=500"`
	Client                 *clientDTO `json:"client"`
	AppointmentID          string     `json:"appointmentId"`
	Reason                 string     `json:"reason" validate:"omitempty,max=300"`
	RequestedTime          string     `json:"requestedTime"`
	RequestedStart         string     `json:"requestedStart"`
	DurationMinutes        *int       `json:"durationMinutes"`
}

type clientDTO struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	PhoneNumber string `json:"phoneNumber"`
	PhoneAlt    string `json:"phone_number"`
	Email       string `json:"email" validate:"omitempty,email,max=200"`
}

type approvalDecisionDTO struct {
	AppointmentID   string          `json:"appointmentId" validate:"required,min=8,max=60"`
	ExpectedVersion int64           `json:"expectedVersion" validate:"required,min=1"`
	Approved        json.RawMessage `json:"approved"`
	ReviewedBy      string          `json:"reviewedBy"`
}

type CommandValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewCommandValidator(log *logger.Logger) *CommandValidator {
	log.Info("Command validator initialized successfully")

	return &CommandValidator{
		validate: validator.New(),
		logger:   log,
	}
}

// ParseAgentCommand decodes and sanitizes an agent action payload. Every
// string is trimmed and bounded before it reaches the service layer.
func (v *CommandValidator) ParseAgentCommand(body []byte) (*model.AgentCommand, error) {
	var dto agentCommandDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fieldError("body", "request body must be a JSON object")
	}

	dto.Action = strings.ToLower(strings.TrimSpace(dto.Action))
	dto.AgentRequestID = strings.TrimSpace(dto.AgentRequestID)
	dto.AuditTier = strings.TrimSpace(dto.AuditTier)
	if dto.AuditTier == "" {
		dto.AuditTier = defaultAuditTier
	}
	dto.ConfirmationWebhookURL = strings.TrimSpace(dto.ConfirmationWebhookURL)
	dto.Notes = strings.TrimSpace(dto.Notes)
	dto.Reason = strings.TrimSpace(dto.Reason)
	dto.AppointmentID = strings.TrimSpace(dto.AppointmentID)

	if err := v.validate.Struct(&dto); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return nil, v.translateValidationErrors(validationErrs)
		}
		return nil, err
	}

	switch dto.Action {
	case model.ActionBook, model.ActionCancel, model.ActionModify:
	default:
		return nil, fieldError("action", "action must be one of book, cancel, modify")
	}

	cmd := &model.AgentCommand{
		Action:                 dto.Action,
		AuditTier:              dto.AuditTier,
		AgentRequestID:         dto.AgentRequestID,
		ConfirmationWebhookURL: dto.ConfirmationWebhookURL,
		Notes:                  dto.Notes,
	}

	switch dto.Action {
	case model.ActionBook:
		client, err := v.parseClient(dto.Client)
		if err != nil {
			return nil, err
		}
		cmd.Client = client

		start, err := parseRequestedStart(dto.RequestedTime, dto.RequestedStart)
		if err != nil {
			return nil, err
		}
		cmd.RequestedStart = start

		duration, err := parseDurationMinutes(dto.DurationMinutes)
		if err != nil {
			return nil, err
		}
		cmd.DurationMinutes = duration

	case model.ActionCancel:
		if err := validateAppointmentID(dto.AppointmentID); err != nil {
			return nil, err
		}
		cmd.AppointmentID = dto.AppointmentID
		cmd.Reason = dto.Reason

	case model.ActionModify:
		if err := validateAppointmentID(dto.AppointmentID); err != nil {
			return nil, err
		}
		cmd.AppointmentID = dto.AppointmentID

		start, err := parseRequestedStart(dto.RequestedTime, dto.RequestedStart)
		if err != nil {
			return nil, err
		}
		cmd.RequestedStart = start

		duration, err := parseDurationMinutes(dto.DurationMinutes)
		if err != nil {
			return nil, err
		}
		cmd.DurationMinutes = duration
	}

	return cmd, nil
}

// ParseApprovalDecision decodes a reviewer decision. The approved field
// accepts both a JSON boolean and the strings "true"/"false" since the
// review console historically sent either.
func (v *CommandValidator) ParseApprovalDecision(body []byte) (*model.ApprovalDecision, error) {
	var dto approvalDecisionDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fieldError("body", "request body must be a JSON object")
	}

	dto.AppointmentID = strings.TrimSpace(dto.AppointmentID)

	if err := v.validate.Struct(&dto); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return nil, v.translateValidationErrors(validationErrs)
		}
		return nil, err
	}

	approved, err := parseApprovedFlag(dto.Approved)
	if err != nil {
		return nil, err
	}

	reviewedBy := sanitizer.TrimBounded(dto.ReviewedBy, 120)
	if reviewedBy == "" {
		reviewedBy = defaultReviewer
	}

	return &model.ApprovalDecision{
		AppointmentID:   dto.AppointmentID,
		ExpectedVersion: dto.ExpectedVersion,
		Approved:        approved,
		ReviewedBy:      reviewedBy,
	}, nil
}

func (v *CommandValidator) parseClient(dto *clientDTO) (*model.CommandClient, error) {
	if dto == nil {
		return nil, fieldError("client", "client is required")
	}

	dto.Name = strings.TrimSpace(dto.Name)
	dto.Email = strings.TrimSpace(dto.Email)

	phone := strings.TrimSpace(dto.PhoneNumber)
	if phone == "" {
		phone = strings.TrimSpace(dto.PhoneAlt)
	}
	if len(phone) < 7 || len(phone) > 20 {
		return nil, fieldError("client.phoneNumber", "client.phoneNumber length is invalid")
	}
	if !phoneRegex.MatchString(phone) {
		return nil, fieldError("client.phoneNumber", "client.phoneNumber format is invalid")
	}

	if err := v.validate.Struct(dto); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return nil, v.translateValidationErrors(validationErrs)
		}
		return nil, err
	}

	if normalized := sanitizer.NormalizePhone(phone); normalized != "" {
		phone = normalized
	}

	return &model.CommandClient{
		Name:        dto.Name,
		PhoneNumber: phone,
		Email:       dto.Email,
	}, nil
}

func validateAppointmentID(id string) error {
	if len(id) < 8 || len(id) > 60 {
		return fieldError("appointmentId", "appointmentId length is invalid")
	}
	return nil
}

func parseRequestedStart(requestedTime, requestedStart string) (time.Time, error) {
	raw := strings.TrimSpace(requestedTime)
	if raw == "" {
		raw = strings.TrimSpace(requestedStart)
	}
	if len(raw) < 8 || len(raw) > 64 {
		return time.Time{}, fieldError("requestedTime", "requestedTime length is invalid")
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fieldError("requestedTime", "requestedTime must be a valid ISO datetime")
	}
	return parsed.UTC(), nil
}

func parseDurationMinutes(value *int) (int, error) {
	duration := defaultDurationMinutes
	if value != nil {
		duration = *value
	}
	if duration < 15 || duration > 240 || duration%15 != 0 {
		return 0, fieldError("durationMinutes",
			"durationMinutes must be an integer between 15 and 240 in 15-minute increments")
	}
	return duration, nil
}

func parseApprovedFlag(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, fieldError("approved", "approved is required")
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}

	return false, fieldError("approved", "approved must be a boolean")
}

func (v *CommandValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
