package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iliyamo/membership-ledger/internal/model"
)

var (
	BenefitsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_benefits_granted_total",
		Help: "Benefits granted by type",
	}, []string{"type"})

	BenefitConsumptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_benefit_consumptions_total",
		Help: "Benefit consumption attempts by result",
	}, []string{"result"})

	BenefitValueConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_benefit_value_consumed_total",
		Help: "Benefit value consumed by type",
	}, []string{"type"})

	EventsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_events_created_total",
		Help: "Events created",
	})

	EventsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_events_expired_total",
		Help: "Events deactivated by source",
	}, []string{"source"})

	BookingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_booking_attempts_total",
		Help: "Entrance booking attempts by result",
	}, []string{"result"})

	Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_booking_cancellations_total",
		Help: "Bookings cancelled",
	})

	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_check_ins_total",
		Help: "Attendees checked in",
	})

	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_notifications_published_total",
		Help: "Notifications sent to the broker by result",
	}, []string{"result"})
)

var known = []error{
	model.ErrUnauthorized,
	model.ErrTokenNotFound,
	model.ErrNotTokenOwner,
	model.ErrMerchantNotAuthorized,
	model.ErrInvalidAmount,
	model.ErrBenefitNotFound,
	model.ErrBenefitExpired,
	model.ErrBenefitExhausted,
	model.ErrEventNotFound,
	model.ErrEventInactive,
	model.ErrEventFull,
	model.ErrAlreadyBooked,
	model.ErrCancellationLimitExceeded,
	model.ErrCancellationWindowClosed,
	model.ErrNoEntrancesRemaining,
	model.ErrConflict,
}

// Result returns the label value for an operation outcome.  Unknown
// errors collapse into "error" to keep label cardinality bounded.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return strings.ReplaceAll(k.Error(), " ", "_")
		}
	}
	return "error"
}

func ObserveBooking(err error) {
	BookingAttempts.WithLabelValues(Result(err)).Inc()
}

func ObserveConsumption(err error) {
	BenefitConsumptions.WithLabelValues(Result(err)).Inc()
}
