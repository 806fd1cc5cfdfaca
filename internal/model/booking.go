package model

import "time"

// Booking records that a token claimed an entrance to an event.  At most
// one active booking exists per (TokenID, EventID); inactive bookings are
// kept as history and are what the cancellation count is derived from.
type Booking struct {
	Ref            string     `json:"ref"`
	TokenID        uint64     `json:"token_id"`
	EventID        uint64     `json:"event_id"`
	EntranceNumber int        `json:"entrance_number"` // 1-based, per token
	IsActive       bool       `json:"is_active"`
	BookedAt       time.Time  `json:"booked_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
}

// EntranceAllowance is the admin configured entrance quota of a token.
type EntranceAllowance struct {
	TokenID        uint64 `json:"token_id"`
	TotalEntrances int    `json:"total_entrances"`
}

// EntranceSummary is the read projection returned for a token's entrances.
type EntranceSummary struct {
	TokenID        uint64 `json:"token_id"`
	TotalEntrances int    `json:"total_entrances"`
	ActiveBookings int    `json:"active_bookings"`
	Available      int    `json:"available_entrances"`
}
