package model

import "time"

// Client is keyed by its E.164-normalized phone number. Bookings upsert it:
// the name is always refreshed, the email only when the new value is set.
type Client struct {
	PhoneNumber string    `bson:"_id" json:"phoneNumber"`
	Name        string    `bson:"name" json:"name"`
	Email       string    `bson:"email,omitempty" json:"email,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}
