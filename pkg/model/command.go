package model

import "time"

// AgentCommand is a fully validated, bounds-checked agent request. The
// command validator is the only producer; the service trusts every field.
type AgentCommand struct {
	Action                 string
	AuditTier              string
	AgentRequestID         string
	ConfirmationWebhookURL string
	Notes                  string

	// book
	Client *CommandClient

	// cancel, modify
	AppointmentID string
	Reason        string

	// book, modify
	RequestedStart  time.Time
	DurationMinutes int
}

type CommandClient struct {
	Name        string
	PhoneNumber string
	Email       string
}

// ApprovalDecision is a validated human approval request.
type ApprovalDecision struct {
	AppointmentID   string
	ExpectedVersion int64
	Approved        bool
	ReviewedBy      string
}

const (
	ResultPendingApproval  = "pending_toney_approval"
	ResultConflict         = "conflict"
	ResultAlreadyCancelled = "already_cancelled"
	ResultApprovalResolved = "approval_resolved"
)

// AgentActionResult is the wire response for book/cancel/modify.
type AgentActionResult struct {
	Status        string     `json:"status"`
	Action        string     `json:"action,omitempty"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	Version       int64      `json:"version,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	RequestedTime *time.Time `json:"requestedTime,omitempty"`
	ProposedTime  *time.Time `json:"proposedTime,omitempty"`
}

// ApprovalResult is the wire response for an approval decision.
type ApprovalResult struct {
	Status            string `json:"status"`
	AppointmentID     string `json:"appointmentId"`
	AppointmentStatus string `json:"appointmentStatus"`
	Version           int64  `json:"version"`
	WebhookDelivered  bool   `json:"webhookDelivered"`
}
