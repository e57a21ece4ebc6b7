// Package notify carries the two best-effort delivery channels: approval
// pushes to the reviewer's device bridge and confirmation webhooks back to
// the agent. Neither is transactionally required; failures are logged and
// reported, never propagated into reservation state.
package notify

import (
	"context"
	"time"

	"sentinel/pkg/kafka"
	"sentinel/pkg/logger"
)

const (
	eventTypePendingApproval = "appointment.pending_approval"
	eventSource              = "nstyle-sentinel"
)

// PendingApprovalNotification tells the reviewer a change is waiting.
// ClientName is looked up from the client record so cancel and modify
// pushes identify the client even though those commands carry no client
// payload.
type PendingApprovalNotification struct {
	AppointmentID string    `json:"appointmentId"`
	Action        string    `json:"action"`
	ClientName    string    `json:"clientName,omitempty"`
	ClientPhone   string    `json:"clientPhone,omitempty"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
}

type PushGateway interface {
	SendPendingApproval(ctx context.Context, n PendingApprovalNotification) error
}

type kafkaPushGateway struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPushGateway(producer *kafka.Producer, log *logger.Logger) PushGateway {
	return &kafkaPushGateway{
		producer: producer,
		log:      log,
	}
}

func (g *kafkaPushGateway) SendPendingApproval(ctx context.Context, n PendingApprovalNotification) error {
	msg := kafka.NewMessage().
		WithKey(n.AppointmentID).
		WithValue(n).
		WithEventType(eventTypePendingApproval).
		WithSource(eventSource).
		Build()

	if err := g.producer.Publish(ctx, msg); err != nil {
		return err
	}

	g.log.Debug("Approval push queued",
		"appointment_id", n.AppointmentID,
		"action", n.Action,
	)
	return nil
}
