package model

import "time"

// AppointmentLock is an advisory lock document keyed by appointment id.
type AppointmentLock struct {
	AppointmentID string    `bson:"_id" json:"appointmentId"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}
