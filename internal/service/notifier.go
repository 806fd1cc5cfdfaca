package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/model"
)

// Notifier receives a record of every committed mutation.  Implementations
// must not block for long; delivery failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Notifiers fans a notification out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n model.Notification) {
	for _, x := range ns {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// LogNotifier writes each notification as a structured log line.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n model.Notification) {
	fields := []zap.Field{zap.String("id", n.ID), zap.Time("occurred_at", n.OccurredAt)}
	if n.TokenID != nil {
		fields = append(fields, zap.Uint64("token_id", *n.TokenID))
	}
	if n.EventID != nil {
		fields = append(fields, zap.Uint64("event_id", *n.EventID))
	}
	if n.BenefitRef != "" {
		fields = append(fields, zap.String("benefit_ref", n.BenefitRef), zap.String("benefit_type", string(n.BenefitType)))
	}
	if n.BookingRef != "" {
		fields = append(fields, zap.String("booking_ref", n.BookingRef))
	}
	if n.Actor != "" {
		fields = append(fields, zap.String("actor", n.Actor))
	}
	l.logger.Info(n.Kind, fields...)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Notification) {}

// notify stamps n and hands it to the configured notifier.
func (o options) notify(ctx context.Context, kind string, actor model.Caller, n model.Notification) {
	n.ID = uuid.NewString()
	n.Kind = kind
	n.Actor = actor.Address
	n.OccurredAt = o.clock.Now()
	o.notifier.Notify(ctx, n)
}
