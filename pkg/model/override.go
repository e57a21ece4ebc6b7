package model

// DayKeyLayout formats a calendar date into the override key.
const DayKeyLayout = "2006-01-02"

// AvailabilityOverride adjusts a single calendar day: either the day is
// fully blocked, or a custom open/close window replaces the default
// business hours. Times are "HH:MM" in the calendar's timezone (UTC).
type AvailabilityOverride struct {
	Date            string `bson:"_id" json:"date"`
	IsBlocked       bool   `bson:"is_blocked" json:"isBlocked"`
	CustomStartTime string `bson:"custom_start_time,omitempty" json:"customStartTime,omitempty"`
	CustomEndTime   string `bson:"custom_end_time,omitempty" json:"customEndTime,omitempty"`
}
