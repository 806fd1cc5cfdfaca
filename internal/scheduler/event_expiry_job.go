// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/clock"
)

// Expirer deactivates events that started before cutoff.
type Expirer interface {
	ExpireStartedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// EventExpiryJob expires events once their date plus a grace period has
// passed, so they stop accepting bookings.
type EventExpiryJob struct {
	cron     *cron.Cron
	schedule string
	grace    time.Duration
	expirer  Expirer
	clock    clock.Clock
	logger   *zap.Logger
}

func NewEventExpiryJob(expirer Expirer, schedule string, grace time.Duration, clk clock.Clock, logger *zap.Logger) *EventExpiryJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &EventExpiryJob{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		schedule: schedule,
		grace:    grace,
		expirer:  expirer,
		clock:    clk,
		logger:   logger.Named("expiry"),
	}
}

func (j *EventExpiryJob) Start() error {
	if j == nil || j.cron == nil || j.expirer == nil {
		return nil
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	return nil
}

// RunOnce performs a single expiry pass and returns how many events it
// deactivated.
func (j *EventExpiryJob) RunOnce(ctx context.Context) int {
	cutoff := j.clock.Now().Add(-j.grace)
	n, err := j.expirer.ExpireStartedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Warn("event expiry job failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return n
	}
	if n > 0 {
		j.logger.Info("events expired", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}

func (j *EventExpiryJob) Stop() {
	if j == nil || j.cron == nil {
		return
	}

	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
	}
}
