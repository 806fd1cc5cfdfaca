package service

import (
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/clock"
)

type options struct {
	logger   *zap.Logger
	notifier Notifier
	clock    clock.Clock
}

// Option configures a service at construction.
type Option func(*options)

// WithLogger sets the service logger.  nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNotifier sets where committed mutations are reported.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock overrides the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		notifier: nopNotifier{},
		clock:    clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func ptr[T any](v T) *T { return &v }
