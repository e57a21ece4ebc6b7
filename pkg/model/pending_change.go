package model

import "time"

// PendingChange is a closed tagged union: exactly one variant is populated,
// selected by Type, which always mirrors the appointment's PendingAction.
type PendingChange struct {
	Type   string        `bson:"type" json:"type"`
	Book   *BookChange   `bson:"book,omitempty" json:"book,omitempty"`
	Cancel *CancelChange `bson:"cancel,omitempty" json:"cancel,omitempty"`
	Modify *ModifyChange `bson:"modify,omitempty" json:"modify,omitempty"`
}

// BookChange snapshots the originating booking request.
type BookChange struct {
	DurationMinutes int    `bson:"duration_minutes" json:"durationMinutes"`
	RequestedBy     string `bson:"requested_by" json:"requestedBy"`
	ClientPhone     string `bson:"client_phone" json:"clientPhone"`
}

// CancelChange records what to report and what to revert to if the
// cancellation is rejected.
type CancelChange struct {
	Reason         string `bson:"reason,omitempty" json:"reason,omitempty"`
	PreviousStatus string `bson:"previous_status" json:"previousStatus"`
}

// ModifyChange records the pre-modify interval. Rejection reverts the status
// only; the interval stays as modified (preserved legacy behavior, the
// snapshot keeps the old interval recoverable).
type ModifyChange struct {
	PreviousStartTime        time.Time `bson:"previous_start_time" json:"previousStartTime"`
	PreviousEndTime          time.Time `bson:"previous_end_time" json:"previousEndTime"`
	PreviousStatus           string    `bson:"previous_status" json:"previousStatus"`
	RequestedDurationMinutes int       `bson:"requested_duration_minutes" json:"requestedDurationMinutes"`
}

func NewBookChange(durationMinutes int, clientPhone string) *PendingChange {
	return &PendingChange{
		Type: ActionBook,
		Book: &BookChange{
			DurationMinutes: durationMinutes,
			RequestedBy:     ChannelAIAgent,
			ClientPhone:     clientPhone,
		},
	}
}

func NewCancelChange(reason, previousStatus string) *PendingChange {
	return &PendingChange{
		Type: ActionCancel,
		Cancel: &CancelChange{
			Reason:         reason,
			PreviousStatus: previousStatus,
		},
	}
}

func NewModifyChange(previousStart, previousEnd time.Time, previousStatus string, durationMinutes int) *PendingChange {
	return &PendingChange{
		Type: ActionModify,
		Modify: &ModifyChange{
			PreviousStartTime:        previousStart,
			PreviousEndTime:          previousEnd,
			PreviousStatus:           previousStatus,
			RequestedDurationMinutes: durationMinutes,
		},
	}
}
