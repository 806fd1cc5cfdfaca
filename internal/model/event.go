package model

import "time"

// Event is a bookable occasion with a fixed capacity.  IDs are assigned
// sequentially starting at 0.  BookedCount counts currently active
// bookings and stays within [0, MaxCapacity].
type Event struct {
	ID          uint64    `json:"event_id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	MaxCapacity int       `json:"max_capacity"`
	BookedCount int       `json:"booked_count"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`

	// AccessBenefit events draw one unit of the attendee's EVENT_ACCESS
	// benefit at check-in.
	AccessBenefit bool `json:"access_benefit"`
}

// NewEvent carries the administrator supplied fields of an event.
type NewEvent struct {
	Name          string
	Location      string
	Date          time.Time
	MaxCapacity   int
	AccessBenefit bool
}

// Remaining returns the number of free slots.
func (e Event) Remaining() int {
	if e.BookedCount >= e.MaxCapacity {
		return 0
	}
	return e.MaxCapacity - e.BookedCount
}
