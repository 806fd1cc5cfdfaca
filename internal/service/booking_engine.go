package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/metrics"
	"github.com/iliyamo/membership-ledger/internal/model"
)

const (
	defaultTokenEntrances     = 1
	defaultMaxCancellations   = 1
	defaultCancellationCutoff = 48 * time.Hour
)

// AccessRedeemer draws event admission credits at check-in.  The
// BenefitLedger satisfies it.
type AccessRedeemer interface {
	BenefitStatus(ctx context.Context, tokenID uint64, typ model.BenefitType) (model.Benefit, bool, error)
	ConsumeBenefit(ctx context.Context, caller model.Caller, tokenID uint64, index int, amount int64) (model.Benefit, error)
}

// BookingEngine books and cancels event entrances on behalf of token
// holders.  It spends the token's entrance allowance, enforces the
// per-event cancellation limit and keeps the registry's slot counts in
// step with active bookings.
type BookingEngine struct {
	repo     EngineRepository
	registry *EventRegistry
	auth     Authorizer
	opts     options

	defaultEntrances   int
	maxCancellations   int
	cancellationCutoff time.Duration
	access             AccessRedeemer
}

// EngineOption configures policy defaults of a BookingEngine.
type EngineOption func(*BookingEngine)

// WithDefaultEntrances sets the allowance used for tokens that have none
// configured.
func WithDefaultEntrances(n int) EngineOption {
	return func(b *BookingEngine) {
		if n >= 0 {
			b.defaultEntrances = n
		}
	}
}

// WithMaxCancellations sets the cancellation limit used until an
// administrator stores a different one.
func WithMaxCancellations(n int) EngineOption {
	return func(b *BookingEngine) {
		if n >= 0 {
			b.maxCancellations = n
		}
	}
}

// WithCancellationCutoff closes cancellation d before the event date.
// Zero leaves cancellation open until check-in.
func WithCancellationCutoff(d time.Duration) EngineOption {
	return func(b *BookingEngine) {
		if d >= 0 {
			b.cancellationCutoff = d
		}
	}
}

// WithAccessRedeemer makes check-in at access events draw one unit of the
// attendee's EVENT_ACCESS benefit.
func WithAccessRedeemer(r AccessRedeemer) EngineOption {
	return func(b *BookingEngine) {
		b.access = r
	}
}

// NewBookingEngine wires the engine.  repo and the registry's repository
// must be the same store so that a booking and its slot reservation commit
// together.
func NewBookingEngine(repo EngineRepository, registry *EventRegistry, auth Authorizer, opts []Option, engineOpts ...EngineOption) *BookingEngine {
	o := buildOptions(opts)
	o.logger = o.logger.Named("booking")
	b := &BookingEngine{
		repo:             repo,
		registry:         registry,
		auth:             auth,
		opts:             o,
		defaultEntrances:   defaultTokenEntrances,
		maxCancellations:   defaultMaxCancellations,
		cancellationCutoff: defaultCancellationCutoff,
	}
	for _, opt := range engineOpts {
		opt(b)
	}
	return b
}

// BookEntrance books one entrance of tokenID to eventID.  The checks run
// in a fixed order: event exists and is active, no active booking for the
// pair, cancellation limit, remaining entrances, then the slot itself.
// Nothing is written unless every step succeeds.
func (b *BookingEngine) BookEntrance(ctx context.Context, caller model.Caller, tokenID, eventID uint64) (model.Booking, error) {
	var booking model.Booking
	err := b.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := b.repo.LockToken(ctx, tokenID); err != nil {
			return err
		}
		if err := b.checkHolder(ctx, caller, tokenID); err != nil {
			return err
		}

		ev, err := b.registry.GetEventDetails(ctx, eventID)
		if err != nil {
			return err
		}
		if !ev.IsActive {
			return model.ErrEventInactive
		}

		active, err := b.repo.FindActiveBooking(ctx, tokenID, eventID)
		if err != nil {
			return err
		}
		if active != nil {
			return model.ErrAlreadyBooked
		}

		cancels, err := b.repo.CountCancellations(ctx, tokenID, eventID)
		if err != nil {
			return err
		}
		limit, err := b.MaxCancellations(ctx)
		if err != nil {
			return err
		}
		if cancels > limit {
			return model.ErrCancellationLimitExceeded
		}

		total, err := b.totalEntrances(ctx, tokenID)
		if err != nil {
			return err
		}
		inUse, err := b.repo.CountActiveBookings(ctx, tokenID)
		if err != nil {
			return err
		}
		if inUse >= total {
			return model.ErrNoEntrancesRemaining
		}

		if err := b.registry.ReserveSlot(ctx, eventID); err != nil {
			return err
		}
		n, err := b.repo.CountBookings(ctx, tokenID)
		if err != nil {
			return err
		}
		booking = model.Booking{
			Ref:            model.NewRef(model.BookingRefPrefix),
			TokenID:        tokenID,
			EventID:        eventID,
			EntranceNumber: n + 1,
			IsActive:       true,
			BookedAt:       b.opts.clock.Now(),
		}
		return b.repo.InsertBooking(ctx, booking)
	})
	metrics.ObserveBooking(err)
	if err != nil {
		b.opts.logger.Debug("booking refused",
			zap.Uint64("token_id", tokenID),
			zap.Uint64("event_id", eventID),
			zap.Error(err),
		)
		return model.Booking{}, err
	}

	b.opts.logger.Info("entrance booked",
		zap.Uint64("token_id", tokenID),
		zap.Uint64("event_id", eventID),
		zap.Int("entrance_number", booking.EntranceNumber),
		zap.String("ref", booking.Ref),
	)
	b.opts.notify(ctx, model.KindBookingCreated, caller, model.Notification{
		TokenID:        ptr(tokenID),
		EventID:        ptr(eventID),
		BookingRef:     booking.Ref,
		EntranceNumber: booking.EntranceNumber,
	})
	return booking, nil
}

// CancelBooking deactivates the pair's active booking and returns its slot
// to the event.  The cancellation is counted against the pair.  It is
// refused once the event is closer than the cancellation cutoff; the exact
// cutoff instant is still open.
func (b *BookingEngine) CancelBooking(ctx context.Context, caller model.Caller, tokenID, eventID uint64) (model.Booking, error) {
	var booking model.Booking
	err := b.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := b.repo.LockToken(ctx, tokenID); err != nil {
			return err
		}
		if err := b.checkHolder(ctx, caller, tokenID); err != nil {
			return err
		}
		active, err := b.repo.FindActiveBooking(ctx, tokenID, eventID)
		if err != nil {
			return err
		}
		if active == nil {
			return model.ErrNoActiveBooking
		}
		if active.CheckedInAt != nil {
			return model.ErrAlreadyCheckedIn
		}
		ev, err := b.registry.GetEventDetails(ctx, eventID)
		if err != nil {
			return err
		}
		now := b.opts.clock.Now()
		if b.cancellationCutoff > 0 && now.After(ev.Date.Add(-b.cancellationCutoff)) {
			return model.ErrCancellationWindowClosed
		}

		booking = *active
		booking.IsActive = false
		booking.CancelledAt = ptr(now)
		if err := b.repo.SaveBooking(ctx, booking); err != nil {
			return err
		}
		return b.registry.ReleaseSlot(ctx, eventID)
	})
	if err != nil {
		b.opts.logger.Debug("cancellation refused",
			zap.Uint64("token_id", tokenID),
			zap.Uint64("event_id", eventID),
			zap.Error(err),
		)
		return model.Booking{}, err
	}

	metrics.Cancellations.Inc()
	b.opts.logger.Info("booking cancelled",
		zap.Uint64("token_id", tokenID),
		zap.Uint64("event_id", eventID),
		zap.String("ref", booking.Ref),
	)
	b.opts.notify(ctx, model.KindBookingCancelled, caller, model.Notification{
		TokenID:        ptr(tokenID),
		EventID:        ptr(eventID),
		BookingRef:     booking.Ref,
		EntranceNumber: booking.EntranceNumber,
	})
	return booking, nil
}

// CheckIn marks the pair's active booking as attended.  Only
// administrators may check attendees in, and only once the event date has
// been reached.  At access events one unit of the attendee's EVENT_ACCESS
// benefit is drawn after the check-in commits.
func (b *BookingEngine) CheckIn(ctx context.Context, caller model.Caller, tokenID, eventID uint64) (model.Booking, error) {
	if !b.auth.IsAuthorized(ctx, caller) {
		return model.Booking{}, model.ErrUnauthorized
	}
	var (
		booking model.Booking
		ev      model.Event
	)
	err := b.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := b.repo.LockToken(ctx, tokenID); err != nil {
			return err
		}
		var err error
		ev, err = b.registry.GetEventDetails(ctx, eventID)
		if err != nil {
			return err
		}
		active, err := b.repo.FindActiveBooking(ctx, tokenID, eventID)
		if err != nil {
			return err
		}
		if active == nil {
			return model.ErrNoActiveBooking
		}
		now := b.opts.clock.Now()
		if now.Before(ev.Date) {
			return model.ErrEventNotStarted
		}
		if active.CheckedInAt != nil {
			return model.ErrAlreadyCheckedIn
		}
		booking = *active
		booking.CheckedInAt = ptr(now)
		return b.repo.SaveBooking(ctx, booking)
	})
	if err != nil {
		return model.Booking{}, err
	}

	metrics.CheckIns.Inc()
	b.opts.logger.Info("attendee checked in",
		zap.Uint64("token_id", tokenID),
		zap.Uint64("event_id", eventID),
		zap.String("ref", booking.Ref),
	)
	b.opts.notify(ctx, model.KindBookingCheckedIn, caller, model.Notification{
		TokenID:        ptr(tokenID),
		EventID:        ptr(eventID),
		BookingRef:     booking.Ref,
		EntranceNumber: booking.EntranceNumber,
	})
	if ev.AccessBenefit {
		b.redeemAccess(ctx, caller, tokenID, eventID)
	}
	return booking, nil
}

// redeemAccess draws one admission credit.  The check-in stands whether or
// not the attendee holds a usable credit.
func (b *BookingEngine) redeemAccess(ctx context.Context, caller model.Caller, tokenID, eventID uint64) {
	if b.access == nil {
		return
	}
	log := b.opts.logger.With(zap.Uint64("token_id", tokenID), zap.Uint64("event_id", eventID))
	benefit, ok, err := b.access.BenefitStatus(ctx, tokenID, model.BenefitEventAccess)
	if err != nil {
		log.Warn("access benefit lookup failed", zap.Error(err))
		return
	}
	if !ok {
		log.Info("no event access benefit to redeem")
		return
	}
	if _, err := b.access.ConsumeBenefit(ctx, caller, tokenID, benefit.Index, 1); err != nil {
		log.Warn("access benefit redemption failed", zap.Int("index", benefit.Index), zap.Error(err))
	}
}

// GetTokenBookings returns every booking of the token, active or not, in
// the order they were made.
func (b *BookingEngine) GetTokenBookings(ctx context.Context, tokenID uint64) ([]model.Booking, error) {
	if _, err := b.repo.OwnerOf(ctx, tokenID); err != nil {
		return nil, err
	}
	return b.repo.ListBookings(ctx, tokenID)
}

// GetAvailableEntrances reports the token's allowance and how much of it
// is held by active bookings.
func (b *BookingEngine) GetAvailableEntrances(ctx context.Context, tokenID uint64) (model.EntranceSummary, error) {
	var sum model.EntranceSummary
	err := b.repo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := b.repo.OwnerOf(ctx, tokenID); err != nil {
			return err
		}
		total, err := b.totalEntrances(ctx, tokenID)
		if err != nil {
			return err
		}
		active, err := b.repo.CountActiveBookings(ctx, tokenID)
		if err != nil {
			return err
		}
		sum = model.EntranceSummary{TokenID: tokenID, TotalEntrances: total, ActiveBookings: active}
		if total > active {
			sum.Available = total - active
		}
		return nil
	})
	return sum, err
}

// GetCancellationCount returns how many bookings of the pair were cancelled.
func (b *BookingEngine) GetCancellationCount(ctx context.Context, tokenID, eventID uint64) (int, error) {
	return b.repo.CountCancellations(ctx, tokenID, eventID)
}

// SetTokenEntrances replaces the token's entrance allowance.  Lowering it
// below the number of active bookings does not cancel anything; it only
// blocks further bookings.
func (b *BookingEngine) SetTokenEntrances(ctx context.Context, caller model.Caller, tokenID uint64, total int) error {
	if !b.auth.IsAuthorized(ctx, caller) {
		return model.ErrUnauthorized
	}
	if total < 0 {
		return model.ErrInvalidEntrances
	}
	err := b.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := b.repo.LockToken(ctx, tokenID); err != nil {
			return err
		}
		return b.repo.SetEntranceAllowance(ctx, tokenID, total)
	})
	if err != nil {
		return err
	}
	b.opts.logger.Info("entrance allowance set", zap.Uint64("token_id", tokenID), zap.Int("total", total))
	return nil
}

// MaxCancellations returns the cancellation limit in force.
func (b *BookingEngine) MaxCancellations(ctx context.Context) (int, error) {
	n, ok, err := b.repo.GetMaxCancellations(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return b.maxCancellations, nil
	}
	return n, nil
}

// SetMaxCancellations stores a new cancellation limit.
func (b *BookingEngine) SetMaxCancellations(ctx context.Context, caller model.Caller, n int) error {
	if !b.auth.IsAuthorized(ctx, caller) {
		return model.ErrUnauthorized
	}
	if n < 0 {
		return model.ErrInvalidPolicy
	}
	if err := b.repo.WithTx(ctx, func(ctx context.Context) error {
		return b.repo.SetMaxCancellations(ctx, n)
	}); err != nil {
		return err
	}
	b.opts.logger.Info("cancellation limit set", zap.Int("max", n))
	return nil
}

func (b *BookingEngine) totalEntrances(ctx context.Context, tokenID uint64) (int, error) {
	total, ok, err := b.repo.GetEntranceAllowance(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return b.defaultEntrances, nil
	}
	return total, nil
}

// checkHolder allows the token owner and administrators.
func (b *BookingEngine) checkHolder(ctx context.Context, caller model.Caller, tokenID uint64) error {
	owner, err := b.repo.OwnerOf(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller.Is(owner) || b.auth.IsAuthorized(ctx, caller) {
		return nil
	}
	return model.ErrNotTokenOwner
}
