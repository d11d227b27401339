package models

import "time"

// PinAttempt is one Worker publish attempt for a pin.
type PinAttempt struct {
	ID            int64     `db:"id" json:"id"`
	PinID         string    `db:"pin_id" json:"pin_id"`
	Attempt       int       `db:"attempt" json:"attempt"`
	ExternalPinID string    `db:"external_pin_id" json:"external_pin_id,omitempty"`
	ErrorMessage  string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
