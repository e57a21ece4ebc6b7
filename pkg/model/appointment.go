package model

import "time"

const (
	StatusPendingApproval = "pending_approval"
	StatusConfirmed       = "confirmed"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
)

const (
	ActionBook   = "book"
	ActionCancel = "cancel"
	ActionModify = "modify"
)

const ChannelAIAgent = "ai_agent"

// ActiveStatuses are the statuses that occupy calendar time. They are the
// only statuses considered during conflict detection.
var ActiveStatuses = []string{StatusPendingApproval, StatusConfirmed}

type Appointment struct {
	ID          string    `bson:"_id" json:"id"`
	ClientPhone string    `bson:"client_phone" json:"clientPhone"`
	StartTime   time.Time `bson:"start_time" json:"startTime"`
	EndTime     time.Time `bson:"end_time" json:"endTime"`
	Status      string    `bson:"status" json:"status"`

	// PendingAction and PendingChange are set only while Status is
	// pending_approval and are cleared atomically with the approval decision.
	PendingAction string         `bson:"pending_action,omitempty" json:"pendingAction,omitempty"`
	PendingChange *PendingChange `bson:"pending_change,omitempty" json:"pendingChange,omitempty"`

	Version int64 `bson:"version" json:"version"`

	AuditTier              string `bson:"audit_tier" json:"auditTier"`
	AgentRequestID         string `bson:"agent_request_id,omitempty" json:"agentRequestId,omitempty"`
	RequestedByChannel     string `bson:"requested_by_channel" json:"requestedByChannel"`
	Notes                  string `bson:"notes,omitempty" json:"notes,omitempty"`
	ConfirmationWebhookURL string `bson:"confirmation_webhook_url,omitempty" json:"confirmationWebhookUrl,omitempty"`
	ReviewedBy             string `bson:"reviewed_by,omitempty" json:"reviewedBy,omitempty"`

	CreatedAt           time.Time  `bson:"created_at" json:"createdAt"`
	ApprovalRequestedAt time.Time  `bson:"approval_requested_at" json:"approvalRequestedAt"`
	ApprovedAt          *time.Time `bson:"approved_at,omitempty" json:"approvedAt,omitempty"`
	CancelledAt         *time.Time `bson:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
}

// IsActive reports whether the appointment occupies its interval for
// conflict purposes.
func (a *Appointment) IsActive() bool {
	return a.Status == StatusPendingApproval || a.Status == StatusConfirmed
}

// Overlaps applies the half-open interval test: [a1,a2) and [b1,b2)
// intersect iff a1 < b2 && a2 > b1.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
