package model

import "time"

// Notification kinds published after a mutation commits.
const (
	KindBenefitGranted   = "benefit.granted"
	KindBenefitConsumed  = "benefit.consumed"
	KindEventCreated     = "event.created"
	KindEventExpired     = "event.expired"
	KindBookingCreated   = "booking.created"
	KindBookingCancelled = "booking.cancelled"
	KindBookingCheckedIn = "booking.checked_in"
)

// Notification is the structured record of a committed state change.  It
// is what the audit log and downstream consumers see; fields that do not
// apply to a kind are left empty.
type Notification struct {
	ID             string      `json:"id"`
	Kind           string      `json:"kind"`
	TokenID        *uint64     `json:"token_id,omitempty"`
	EventID        *uint64     `json:"event_id,omitempty"`
	BenefitIndex   *int        `json:"benefit_index,omitempty"`
	BenefitRef     string      `json:"benefit_ref,omitempty"`
	BenefitType    BenefitType `json:"benefit_type,omitempty"`
	Amount         int64       `json:"amount,omitempty"`
	RemainingValue *int64      `json:"remaining_value,omitempty"`
	BookingRef     string      `json:"booking_ref,omitempty"`
	EntranceNumber int         `json:"entrance_number,omitempty"`
	Actor          string      `json:"actor,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}
