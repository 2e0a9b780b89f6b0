package models

import "time"

// BookingForm is what the landing page posts when a visitor books a
// showroom appointment. Required fields are checked by the booking pipeline,
// not by binding tags, so that all missing fields are reported together.
type BookingForm struct {
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Location        string    `json:"location,omitempty"`
	AdditionalNotes string    `json:"additionalNotes,omitempty"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	EventType       string    `json:"eventType"`
}

// BookingRecord is a booking confirmed by the scheduler. Immutable once built.
type BookingRecord struct {
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Location        string    `json:"location,omitempty"`
	AdditionalNotes string    `json:"additionalNotes,omitempty"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	EventType       string    `json:"eventType"`
	BookingID       string    `json:"bookingId"`
	UID             string    `json:"uid"`
}

// Mirror statuses stored in the booking ledger.
const (
	MirrorStatusMirrored     = "mirrored"
	MirrorStatusFailed       = "failed"
	MirrorStatusUnconfigured = "unconfigured"
)

type LedgerEntry struct {
	ID           int64         `json:"id"`
	Booking      BookingRecord `json:"booking"`
	MirrorStatus string        `json:"mirrorStatus"`
	MirrorError  string        `json:"mirrorError,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}
