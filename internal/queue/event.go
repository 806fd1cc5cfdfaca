// Package queue moves membership notifications through RabbitMQ: a
// publisher that the services use as a notifier and a consumer that keeps
// an append-only audit log.
package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/membership-ledger/internal/model"
)

// EventsQueue is the durable queue carrying model.Notification messages as
// JSON.
const EventsQueue = "membership.events"

// formatLine renders n as a single audit line.  Only the fields that apply
// to the notification's kind are written.
func formatLine(n model.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | id=%s", n.OccurredAt.UTC().Format(time.RFC3339Nano), n.Kind, n.ID)
	if n.Actor != "" {
		fmt.Fprintf(&b, " | actor=%s", n.Actor)
	}
	if n.TokenID != nil {
		fmt.Fprintf(&b, " | token_id=%d", *n.TokenID)
	}
	if n.EventID != nil {
		fmt.Fprintf(&b, " | event_id=%d", *n.EventID)
	}
	if n.BenefitIndex != nil {
		fmt.Fprintf(&b, " | benefit_index=%d", *n.BenefitIndex)
	}
	if n.BenefitRef != "" {
		fmt.Fprintf(&b, " | benefit_ref=%s", n.BenefitRef)
	}
	if n.BenefitType != "" {
		fmt.Fprintf(&b, " | benefit_type=%s", n.BenefitType)
	}
	if n.Amount != 0 {
		fmt.Fprintf(&b, " | amount=%d", n.Amount)
	}
	if n.RemainingValue != nil {
		fmt.Fprintf(&b, " | remaining=%d", *n.RemainingValue)
	}
	if n.BookingRef != "" {
		fmt.Fprintf(&b, " | booking_ref=%s", n.BookingRef)
	}
	if n.EntranceNumber != 0 {
		fmt.Fprintf(&b, " | entrance=%d", n.EntranceNumber)
	}
	b.WriteByte('\n')
	return b.String()
}
