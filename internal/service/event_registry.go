package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/metrics"
	"github.com/iliyamo/membership-ledger/internal/model"
)

// EventRegistry owns events and their slot counters.  ReserveSlot and
// ReleaseSlot are meant to be called by the BookingEngine inside its own
// transaction; they join it through the context.
type EventRegistry struct {
	repo RegistryRepository
	auth Authorizer
	opts options
}

func NewEventRegistry(repo RegistryRepository, auth Authorizer, opts ...Option) *EventRegistry {
	o := buildOptions(opts)
	o.logger = o.logger.Named("registry")
	return &EventRegistry{repo: repo, auth: auth, opts: o}
}

// CreateEvent registers a new active event with no bookings and returns
// it with its assigned ID.
func (r *EventRegistry) CreateEvent(ctx context.Context, caller model.Caller, in model.NewEvent) (model.Event, error) {
	if !r.auth.IsAuthorized(ctx, caller) {
		return model.Event{}, model.ErrUnauthorized
	}
	if in.MaxCapacity <= 0 {
		return model.Event{}, model.ErrInvalidCapacity
	}

	e := model.Event{
		Name:          in.Name,
		Location:      in.Location,
		Date:          in.Date.UTC(),
		MaxCapacity:   in.MaxCapacity,
		IsActive:      true,
		CreatedAt:     r.opts.clock.Now(),
		AccessBenefit: in.AccessBenefit,
	}
	if err := r.repo.WithTx(ctx, func(ctx context.Context) error {
		return r.repo.CreateEvent(ctx, &e)
	}); err != nil {
		return model.Event{}, err
	}

	metrics.EventsCreated.Inc()
	r.opts.logger.Info("event created",
		zap.Uint64("event_id", e.ID),
		zap.String("name", e.Name),
		zap.Time("date", e.Date),
		zap.Int("max_capacity", e.MaxCapacity),
		zap.Bool("access_benefit", e.AccessBenefit),
	)
	r.opts.notify(ctx, model.KindEventCreated, caller, model.Notification{EventID: ptr(e.ID)})
	return e, nil
}

// GetEventDetails returns a snapshot of the event.
func (r *EventRegistry) GetEventDetails(ctx context.Context, id uint64) (model.Event, error) {
	return r.repo.GetEvent(ctx, id)
}

// ListEvents returns snapshots of all events ordered by ID.
func (r *EventRegistry) ListEvents(ctx context.Context) ([]model.Event, error) {
	return r.repo.ListEvents(ctx)
}

// ReserveSlot takes one slot of the event.  It fails without changing
// anything when the event is inactive or already at capacity.
func (r *EventRegistry) ReserveSlot(ctx context.Context, id uint64) error {
	return r.repo.WithTx(ctx, func(ctx context.Context) error {
		e, err := r.repo.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !e.IsActive {
			return model.ErrEventInactive
		}
		if e.BookedCount >= e.MaxCapacity {
			return model.ErrEventFull
		}
		e.BookedCount++
		return r.repo.SaveEvent(ctx, e)
	})
}

// ReleaseSlot gives one slot back.  The count never drops below zero.
func (r *EventRegistry) ReleaseSlot(ctx context.Context, id uint64) error {
	return r.repo.WithTx(ctx, func(ctx context.Context) error {
		e, err := r.repo.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if e.BookedCount == 0 {
			return nil
		}
		e.BookedCount--
		return r.repo.SaveEvent(ctx, e)
	})
}

// ExpireEvent deactivates an event so that no new bookings are accepted.
// Existing bookings are left as they are.  Expiring an inactive event is
// a no-op.
func (r *EventRegistry) ExpireEvent(ctx context.Context, caller model.Caller, id uint64) (model.Event, error) {
	if !r.auth.IsAuthorized(ctx, caller) {
		return model.Event{}, model.ErrUnauthorized
	}
	e, changed, err := r.expire(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if changed {
		metrics.EventsExpired.WithLabelValues("admin").Inc()
		r.opts.logger.Info("event expired", zap.Uint64("event_id", id), zap.String("by", caller.Address))
		r.opts.notify(ctx, model.KindEventExpired, caller, model.Notification{EventID: ptr(id)})
	}
	return e, nil
}

// ExpireStartedBefore deactivates every active event dated before cutoff
// and returns how many were expired.  It is run by the scheduler.
func (r *EventRegistry) ExpireStartedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	events, err := r.repo.ListActiveEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	system := model.Caller{Address: "scheduler", Role: model.RoleAdmin}
	n := 0
	for _, e := range events {
		_, changed, err := r.expire(ctx, e.ID)
		if err != nil {
			return n, err
		}
		if changed {
			n++
			metrics.EventsExpired.WithLabelValues("scheduler").Inc()
			r.opts.notify(ctx, model.KindEventExpired, system, model.Notification{EventID: ptr(e.ID)})
		}
	}
	if n > 0 {
		r.opts.logger.Info("past events expired", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func (r *EventRegistry) expire(ctx context.Context, id uint64) (model.Event, bool, error) {
	var (
		e       model.Event
		changed bool
	)
	err := r.repo.WithTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = r.repo.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !e.IsActive {
			return nil
		}
		e.IsActive = false
		changed = true
		return r.repo.SaveEvent(ctx, e)
	})
	return e, changed, err
}
