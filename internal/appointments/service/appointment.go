package service

import (
	"context"
	"errors"
	"time"

	appterrors "sentinel/internal/appointments/errors"
	"sentinel/internal/appointments/repository"
	"sentinel/pkg/config"
	apperrors "sentinel/pkg/errors"
	"sentinel/pkg/logger"
	"sentinel/pkg/model"
	"sentinel/pkg/notify"
	"sentinel/pkg/retry"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// AvailabilityScanner proposes the next bookable slot after a conflict.
type AvailabilityScanner interface {
	NextAvailable(ctx context.Context, requestedStart time.Time, durationMinutes int, excludeID string) (*time.Time, error)
}

// AppointmentService drives the reservation state machine. Every mutating
// action lands in pending_approval and stays inert until a human decision
// arrives through ResolveApproval.
type AppointmentService interface {
	HandleAgentAction(ctx context.Context, cmd *model.AgentCommand) (*model.AgentActionResult, error)
	ResolveApproval(ctx context.Context, decision *model.ApprovalDecision) (*model.ApprovalResult, error)
}

type appointmentService struct {
	appointments repository.AppointmentRepository
	clients      repository.ClientRepository
	claims       repository.SlotClaimRepository
	locks        repository.AppointmentLockRepository
	scanner      AvailabilityScanner
	push         notify.PushGateway
	webhooks     notify.WebhookClient
	retry        retry.Policy
	cfg          *config.Config
	logger       *logger.Logger
}

func NewAppointmentService(
	appointments repository.AppointmentRepository,
	clients repository.ClientRepository,
	claims repository.SlotClaimRepository,
	locks repository.AppointmentLockRepository,
	scanner AvailabilityScanner,
	push notify.PushGateway,
	webhooks notify.WebhookClient,
	cfg *config.Config,
	log *logger.Logger,
) AppointmentService {
	return &appointmentService{
		appointments: appointments,
		clients:      clients,
		claims:       claims,
		locks:        locks,
		scanner:      scanner,
		push:         push,
		webhooks:     webhooks,
		retry:        retry.NewPolicy(cfg.RetryAttempts, cfg.RetryDelay),
		cfg:          cfg,
		logger:       log,
	}
}

// HandleAgentAction dispatches a validated agent command.
func (s *appointmentService) HandleAgentAction(ctx context.Context, cmd *model.AgentCommand) (*model.AgentActionResult, error) {
	switch cmd.Action {
	case model.ActionBook:
		return s.handleBook(ctx, cmd)
	case model.ActionCancel:
		return s.handleCancel(ctx, cmd)
	case model.ActionModify:
		return s.handleModify(ctx, cmd)
	default:
		return nil, apperrors.InvalidPayload("Unsupported action")
	}
}

func (s *appointmentService) handleBook(ctx context.Context, cmd *model.AgentCommand) (*model.AgentActionResult, error) {
	start := cmd.RequestedStart
	end := start.Add(time.Duration(cmd.DurationMinutes) * time.Minute)

	conflicted, err := s.hasConflict(ctx, start, end, "")
	if err != nil {
		return nil, apperrors.Internal("conflict check failed", err)
	}
	if conflicted {
		return s.buildConflictResult(ctx, cmd, start)
	}

	now := time.Now().UTC()
	appointment := &model.Appointment{
		ID:                     uuid.NewString(),
		ClientPhone:            cmd.Client.PhoneNumber,
		StartTime:              start,
		EndTime:                end,
		Status:                 model.StatusPendingApproval,
		PendingAction:          model.ActionBook,
		PendingChange:          model.NewBookChange(cmd.DurationMinutes, cmd.Client.PhoneNumber),
		Version:                1,
		AuditTier:              cmd.AuditTier,
		AgentRequestID:         cmd.AgentRequestID,
		RequestedByChannel:     model.ChannelAIAgent,
		Notes:                  cmd.Notes,
		ConfirmationWebhookURL: cmd.ConfirmationWebhookURL,
		CreatedAt:              now,
		ApprovalRequestedAt:    now,
	}

	err = s.appointments.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.clients.Upsert(sessCtx, &model.Client{
			PhoneNumber: cmd.Client.PhoneNumber,
			Name:        cmd.Client.Name,
			Email:       cmd.Client.Email,
		}); err != nil {
			return err
		}

		if err := s.appointments.Insert(sessCtx, appointment); err != nil {
			return err
		}

		cells := model.SlotCellKeys(start, end, s.cfg.SlotMinutes)
		return s.claims.Claim(sessCtx, appointment.ID, cells)
	})
	if err != nil {
		// A slot collision inside the transaction means another booking won
		// the window between the pre-check and the commit.
		if errors.Is(err, appterrors.ErrSlotTaken) {
			return s.buildConflictResult(ctx, cmd, start)
		}
		return nil, apperrors.Internal("booking transaction failed", err)
	}

	s.notifyPendingApproval(ctx, appointment)

	s.logger.Info("Booking pending approval",
		"appointment_id", appointment.ID,
		"start_time", appointment.StartTime,
		"end_time", appointment.EndTime,
		"audit_tier", appointment.AuditTier,
	)

	return pendingResult(model.ActionBook, appointment, true), nil
}

func (s *appointmentService) handleCancel(ctx context.Context, cmd *model.AgentCommand) (*model.AgentActionResult, error) {
	release, err := s.acquireLock(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var appointment *model.Appointment
	alreadyCancelled := false

	err = s.appointments.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		existing, err := s.appointments.FindByID(sessCtx, cmd.AppointmentID)
		if err != nil {
			return err
		}

		if existing.Status == model.StatusCancelled {
			appointment = existing
			alreadyCancelled = true
			return nil
		}

		reason := cmd.Reason
		if reason == "" {
			reason = cmd.Notes
		}

		existing.PendingChange = model.NewCancelChange(reason, existing.Status)
		existing.Status = model.StatusPendingApproval
		existing.PendingAction = model.ActionCancel
		existing.ApprovalRequestedAt = time.Now().UTC()
		existing.AuditTier = cmd.AuditTier
		existing.Version++
		coalesceRequestFields(existing, cmd)

		if err := s.appointments.Update(sessCtx, existing); err != nil {
			return err
		}

		appointment = existing
		return nil
	})
	if err != nil {
		if errors.Is(err, appterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("appointment", cmd.AppointmentID)
		}
		return nil, apperrors.Internal("cancel transaction failed", err)
	}

	if alreadyCancelled {
		return &model.AgentActionResult{
			Status:        model.ResultAlreadyCancelled,
			AppointmentID: appointment.ID,
		}, nil
	}

	s.notifyPendingApproval(ctx, appointment)

	s.logger.Info("Cancellation pending approval",
		"appointment_id", appointment.ID,
		"audit_tier", appointment.AuditTier,
	)

	return pendingResult(model.ActionCancel, appointment, false), nil
}

func (s *appointmentService) handleModify(ctx context.Context, cmd *model.AgentCommand) (*model.AgentActionResult, error) {
	start := cmd.RequestedStart
	end := start.Add(time.Duration(cmd.DurationMinutes) * time.Minute)

	conflicted, err := s.hasConflict(ctx, start, end, cmd.AppointmentID)
	if err != nil {
		return nil, apperrors.Internal("conflict check failed", err)
	}
	if conflicted {
		return s.buildConflictResult(ctx, cmd, start)
	}

	release, err := s.acquireLock(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var appointment *model.Appointment

	err = s.appointments.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		existing, err := s.appointments.FindByID(sessCtx, cmd.AppointmentID)
		if err != nil {
			return err
		}

		if existing.Status == model.StatusCancelled {
			return apperrors.InvalidState("Cannot modify a cancelled appointment")
		}

		existing.PendingChange = model.NewModifyChange(existing.StartTime, existing.EndTime, existing.Status, cmd.DurationMinutes)
		existing.StartTime = start
		existing.EndTime = end
		existing.Status = model.StatusPendingApproval
		existing.PendingAction = model.ActionModify
		existing.ApprovalRequestedAt = time.Now().UTC()
		existing.AuditTier = cmd.AuditTier
		existing.Version++
		coalesceRequestFields(existing, cmd)

		if err := s.appointments.Update(sessCtx, existing); err != nil {
			return err
		}

		// Move the slot claims onto the new interval. A collision here means
		// the window was taken between the pre-check and the commit.
		if err := s.claims.ReleaseByAppointment(sessCtx, existing.ID); err != nil {
			return err
		}
		cells := model.SlotCellKeys(start, end, s.cfg.SlotMinutes)
		if err := s.claims.Claim(sessCtx, existing.ID, cells); err != nil {
			return err
		}

		appointment = existing
		return nil
	})
	if err != nil {
		if errors.Is(err, appterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("appointment", cmd.AppointmentID)
		}
		if errors.Is(err, appterrors.ErrSlotTaken) {
			return s.buildConflictResult(ctx, cmd, start)
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("modify transaction failed", err)
	}

	s.notifyPendingApproval(ctx, appointment)

	s.logger.Info("Modification pending approval",
		"appointment_id", appointment.ID,
		"start_time", appointment.StartTime,
		"end_time", appointment.EndTime,
		"audit_tier", appointment.AuditTier,
	)

	return pendingResult(model.ActionModify, appointment, true), nil
}

// ResolveApproval applies a human decision to a pending appointment. The
// update is conditional on the reviewer's expected version; a mismatch means
// the appointment changed after the reviewer last saw it.
func (s *appointmentService) ResolveApproval(ctx context.Context, decision *model.ApprovalDecision) (*model.ApprovalResult, error) {
	release, err := s.acquireLock(ctx, decision.AppointmentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var appointment *model.Appointment

	err = s.appointments.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		existing, err := s.appointments.FindByID(sessCtx, decision.AppointmentID)
		if err != nil {
			return err
		}

		if existing.Status != model.StatusPendingApproval || existing.PendingAction == "" {
			return apperrors.InvalidState("Appointment is not awaiting approval")
		}

		now := time.Now().UTC()
		nextStatus := resolveApprovalTransition(existing.PendingAction, decision.Approved)

		expectedVersion := decision.ExpectedVersion
		existing.Status = nextStatus
		existing.PendingAction = ""
		existing.PendingChange = nil
		existing.ReviewedBy = decision.ReviewedBy
		existing.Version = expectedVersion + 1
		if decision.Approved {
			existing.ApprovedAt = &now
		}
		if nextStatus == model.StatusCancelled {
			existing.CancelledAt = &now
		}

		if err := s.appointments.UpdateWithVersion(sessCtx, existing, expectedVersion); err != nil {
			return err
		}

		// Terminal outcomes free the calendar window.
		if nextStatus == model.StatusCancelled || nextStatus == model.StatusRejected {
			if err := s.claims.ReleaseByAppointment(sessCtx, existing.ID); err != nil {
				return err
			}
		}

		appointment = existing
		return nil
	})
	if err != nil {
		if errors.Is(err, appterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("appointment", decision.AppointmentID)
		}
		if errors.Is(err, appterrors.ErrVersionConflict) {
			return nil, apperrors.OptimisticLockConflict()
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Internal("approval transaction failed", err)
	}

	webhookDelivered := s.deliverConfirmation(ctx, appointment, decision)

	s.logger.Info("Approval resolved",
		"appointment_id", appointment.ID,
		"appointment_status", appointment.Status,
		"approved", decision.Approved,
		"reviewed_by", decision.ReviewedBy,
		"webhook_delivered", webhookDelivered,
	)

	return &model.ApprovalResult{
		Status:            model.ResultApprovalResolved,
		AppointmentID:     appointment.ID,
		AppointmentStatus: appointment.Status,
		Version:           appointment.Version,
		WebhookDelivered:  webhookDelivered,
	}, nil
}

// hasConflict is an advisory pre-check; the slot claims inside the
// transaction are the authoritative guard.
func (s *appointmentService) hasConflict(ctx context.Context, start, end time.Time, excludeID string) (bool, error) {
	overlapping, err := retry.DoValue(ctx, s.retry, func(ctx context.Context) ([]*model.Appointment, error) {
		return s.appointments.FindActiveOverlapping(ctx, start, end, excludeID)
	})
	if err != nil {
		return false, err
	}
	return len(overlapping) > 0, nil
}

func (s *appointmentService) buildConflictResult(ctx context.Context, cmd *model.AgentCommand, requestedStart time.Time) (*model.AgentActionResult, error) {
	proposed, err := s.scanner.NextAvailable(ctx, requestedStart, cmd.DurationMinutes, cmd.AppointmentID)
	if err != nil {
		s.logger.Error("Slot proposal scan failed",
			"error", err,
			"requested_start", requestedStart,
		)
		proposed = nil
	}

	return &model.AgentActionResult{
		Status:        model.ResultConflict,
		Action:        cmd.Action,
		RequestedTime: &requestedStart,
		ProposedTime:  proposed,
	}, nil
}

// acquireLock takes the per-appointment advisory lock, retrying briefly on
// contention. The returned release function is safe to defer.
func (s *appointmentService) acquireLock(ctx context.Context, appointmentID string) (func(), error) {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.locks.Acquire(ctx, appointmentID)
	})
	if err != nil {
		if errors.Is(err, appterrors.ErrLockHeld) {
			return nil, apperrors.InvalidState("Appointment is currently being processed")
		}
		return nil, apperrors.Internal("failed to acquire appointment lock", err)
	}

	return func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), appointmentID); err != nil {
			s.logger.Error("Failed to release appointment lock",
				"appointment_id", appointmentID,
				"error", err,
			)
		}
	}, nil
}

// notifyPendingApproval pushes the review request. Delivery is best-effort:
// the reservation is already committed, so a push failure only logs. The
// client lookup gives the reviewer a name to act on; cancel and modify
// commands carry only the appointment id.
func (s *appointmentService) notifyPendingApproval(ctx context.Context, appointment *model.Appointment) {
	clientName := ""
	if client, err := s.clients.FindByPhone(ctx, appointment.ClientPhone); err == nil && client != nil {
		clientName = client.Name
	}

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.push.SendPendingApproval(ctx, notify.PendingApprovalNotification{
			AppointmentID: appointment.ID,
			Action:        appointment.PendingAction,
			ClientName:    clientName,
			ClientPhone:   appointment.ClientPhone,
			StartTime:     appointment.StartTime,
			EndTime:       appointment.EndTime,
		})
	})
	if err != nil {
		s.logger.Error("Approval push failed",
			"appointment_id", appointment.ID,
			"action", appointment.PendingAction,
			"error", err,
		)
	}
}

func (s *appointmentService) deliverConfirmation(ctx context.Context, appointment *model.Appointment, decision *model.ApprovalDecision) bool {
	if appointment.ConfirmationWebhookURL == "" {
		return false
	}

	payload := notify.ConfirmationPayload{
		AppointmentID: appointment.ID,
		Status:        appointment.Status,
		Approved:      decision.Approved,
		ReviewedBy:    decision.ReviewedBy,
		StartTime:     appointment.StartTime,
		EndTime:       appointment.EndTime,
		Version:       appointment.Version,
	}

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.webhooks.PostConfirmation(ctx, appointment.ConfirmationWebhookURL, payload)
	})
	if err != nil {
		s.logger.Error("Confirmation webhook failed",
			"appointment_id", appointment.ID,
			"error", err,
		)
		return false
	}

	return true
}

// resolveApprovalTransition maps (pending action, decision) to the next
// status. Rejected cancellations and modifications fall back to confirmed;
// only a rejected booking disappears from the calendar as rejected.
func resolveApprovalTransition(pendingAction string, approved bool) string {
	if approved {
		if pendingAction == model.ActionCancel {
			return model.StatusCancelled
		}
		return model.StatusConfirmed
	}

	if pendingAction == model.ActionBook {
		return model.StatusRejected
	}
	return model.StatusConfirmed
}

// coalesceRequestFields overwrites request metadata only when the incoming
// command carries a value.
func coalesceRequestFields(appointment *model.Appointment, cmd *model.AgentCommand) {
	if cmd.Notes != "" {
		appointment.Notes = cmd.Notes
	}
	if cmd.AgentRequestID != "" {
		appointment.AgentRequestID = cmd.AgentRequestID
	}
	if cmd.ConfirmationWebhookURL != "" {
		appointment.ConfirmationWebhookURL = cmd.ConfirmationWebhookURL
	}
}

func pendingResult(action string, appointment *model.Appointment, includeTimes bool) *model.AgentActionResult {
	result := &model.AgentActionResult{
		Status:        model.ResultPendingApproval,
		Action:        action,
		AppointmentID: appointment.ID,
		Version:       appointment.Version,
	}
	if includeTimes {
		start := appointment.StartTime
		end := appointment.EndTime
		result.StartTime = &start
		result.EndTime = &end
	}
	return result
}
