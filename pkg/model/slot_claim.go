package model

import "time"

// SlotClaim reserves one slot-grid cell for an active appointment. Claims
// are inserted in the same transaction as the appointment write; the unique
// _id per cell is the store-level exclusion guarantee backing the overlap
// pre-check.
type SlotClaim struct {
	Cell          string    `bson:"_id" json:"cell"`
	AppointmentID string    `bson:"appointment_id" json:"appointmentId"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}

// SlotCellKeys returns the keys of every grid cell the half-open interval
// [start, end) touches. Any two overlapping intervals share at least one
// cell, so colliding claims are a superset of true interval overlaps.
func SlotCellKeys(start, end time.Time, slotMinutes int) []string {
	slot := time.Duration(slotMinutes) * time.Minute
	cursor := start.UTC().Truncate(slot)

	var keys []string
	for cursor.Before(end) {
		keys = append(keys, cursor.Format(time.RFC3339))
		cursor = cursor.Add(slot)
	}
	return keys
}
