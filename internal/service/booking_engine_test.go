package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/membership-ledger/internal/model"
	"github.com/iliyamo/membership-ledger/internal/service"
)

func TestBookEntranceLastSlotHandover(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 1)

	a, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.EntranceNumber)
	assert.True(t, a.IsActive)

	got, _ := f.registry.GetEventDetails(f.ctx, e.ID)
	assert.Equal(t, 1, got.BookedCount)

	_, err = f.engine.BookEntrance(f.ctx, holder(2), 2, e.ID)
	assert.ErrorIs(t, err, model.ErrEventFull)
	assert.True(t, model.IsRetryable(err))

	_, err = f.engine.CancelBooking(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)
	got, _ = f.registry.GetEventDetails(f.ctx, e.ID)
	assert.Equal(t, 0, got.BookedCount)

	_, err = f.engine.BookEntrance(f.ctx, holder(2), 2, e.ID)
	require.NoError(t, err)
	got, _ = f.registry.GetEventDetails(f.ctx, e.ID)
	assert.Equal(t, 1, got.BookedCount)
}

func TestBookEntranceAllowance(t *testing.T) {
	f := newFixture(t)
	events := []model.Event{f.createEvent(t, 10), f.createEvent(t, 10), f.createEvent(t, 10)}

	require.NoError(t, f.engine.SetTokenEntrances(f.ctx, admin, 3, 2))

	b1, err := f.engine.BookEntrance(f.ctx, holder(3), 3, events[0].ID)
	require.NoError(t, err)
	b2, err := f.engine.BookEntrance(f.ctx, holder(3), 3, events[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b1.EntranceNumber)
	assert.Equal(t, 2, b2.EntranceNumber)

	_, err = f.engine.BookEntrance(f.ctx, holder(3), 3, events[2].ID)
	assert.ErrorIs(t, err, model.ErrNoEntrancesRemaining)

	sum, err := f.engine.GetAvailableEntrances(f.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.EntranceSummary{TokenID: 3, TotalEntrances: 2, ActiveBookings: 2, Available: 0}, sum)

	// cancelling frees the entrance again
	_, err = f.engine.CancelBooking(f.ctx, holder(3), 3, events[0].ID)
	require.NoError(t, err)
	b3, err := f.engine.BookEntrance(f.ctx, holder(3), 3, events[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, b3.EntranceNumber)
}

func TestCancellationLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.createEvent(t, 5)
	}
	require.NoError(t, f.engine.SetMaxCancellations(f.ctx, admin, 1))
	const token, event = uint64(5), uint64(2)

	_, err := f.engine.BookEntrance(f.ctx, holder(token), token, event)
	require.NoError(t, err)
	_, err = f.engine.CancelBooking(f.ctx, holder(token), token, event)
	require.NoError(t, err)

	_, err = f.engine.BookEntrance(f.ctx, holder(token), token, event)
	require.NoError(t, err)
	_, err = f.engine.CancelBooking(f.ctx, holder(token), token, event)
	require.NoError(t, err)

	n, err := f.engine.GetCancellationCount(f.ctx, token, event)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.engine.BookEntrance(f.ctx, holder(token), token, event)
	assert.ErrorIs(t, err, model.ErrCancellationLimitExceeded)

	// other events are unaffected
	_, err = f.engine.BookEntrance(f.ctx, holder(token), token, 1)
	assert.NoError(t, err)
}

func TestBookEntranceCheckOrder(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 1)

	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, 77)
	assert.ErrorIs(t, err, model.ErrEventNotFound)

	_, err = f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)

	// already booked wins over event full
	_, err = f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyBooked)

	// inactive wins over already booked
	_, err = f.registry.ExpireEvent(f.ctx, admin, e.ID)
	require.NoError(t, err)
	_, err = f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	assert.ErrorIs(t, err, model.ErrEventInactive)

	// entrances are checked before capacity
	other := f.createEvent(t, 1)
	_, err = f.engine.BookEntrance(f.ctx, holder(4), 4, other.ID)
	require.NoError(t, err)
	require.NoError(t, f.engine.SetTokenEntrances(f.ctx, admin, 6, 0))
	_, err = f.engine.BookEntrance(f.ctx, holder(6), 6, other.ID)
	assert.ErrorIs(t, err, model.ErrNoEntrancesRemaining)
}

func TestBookEntranceCallerChecks(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 3)

	_, err := f.engine.BookEntrance(f.ctx, stranger, 1, e.ID)
	assert.ErrorIs(t, err, model.ErrNotTokenOwner)

	_, err = f.engine.BookEntrance(f.ctx, holder(1), 404, e.ID)
	assert.ErrorIs(t, err, model.ErrTokenNotFound)

	// administrators may book on a holder's behalf
	_, err = f.engine.BookEntrance(f.ctx, admin, 1, e.ID)
	assert.NoError(t, err)

	_, err = f.engine.CancelBooking(f.ctx, stranger, 1, e.ID)
	assert.ErrorIs(t, err, model.ErrNotTokenOwner)
}

func TestCancelBookingTwice(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 3)
	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)
	_, err = f.engine.BookEntrance(f.ctx, holder(2), 2, e.ID)
	require.NoError(t, err)

	cancelled, err := f.engine.CancelBooking(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)
	assert.False(t, cancelled.IsActive)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.engine.CancelBooking(f.ctx, holder(1), 1, e.ID)
	assert.ErrorIs(t, err, model.ErrNoActiveBooking)

	got, _ := f.registry.GetEventDetails(f.ctx, e.ID)
	assert.Equal(t, 1, got.BookedCount, "second cancel must not release another slot")

	n, _ := f.engine.GetCancellationCount(f.ctx, 1, e.ID)
	assert.Equal(t, 1, n)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 3)
	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)

	_, err = f.engine.CheckIn(f.ctx, holder(1), 1, e.ID)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.engine.CheckIn(f.ctx, admin, 1, e.ID)
	assert.ErrorIs(t, err, model.ErrEventNotStarted)

	f.clk.Set(e.Date)
	b, err := f.engine.CheckIn(f.ctx, admin, 1, e.ID)
	require.NoError(t, err)
	require.NotNil(t, b.CheckedInAt)
	assert.Equal(t, e.Date, *b.CheckedInAt)

	_, err = f.engine.CheckIn(f.ctx, admin, 1, e.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyCheckedIn)

	_, err = f.engine.CancelBooking(f.ctx, holder(1), 1, e.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyCheckedIn)

	_, err = f.engine.CheckIn(f.ctx, admin, 2, e.ID)
	assert.ErrorIs(t, err, model.ErrNoActiveBooking)

	assert.Contains(t, f.notes.Kinds(), model.KindBookingCheckedIn)
}

func TestGetTokenBookingsKeepsHistory(t *testing.T) {
	f := newFixture(t, service.WithDefaultEntrances(3))
	e0, e1 := f.createEvent(t, 3), f.createEvent(t, 3)

	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e0.ID)
	require.NoError(t, err)
	_, err = f.engine.CancelBooking(f.ctx, holder(1), 1, e0.ID)
	require.NoError(t, err)
	_, err = f.engine.BookEntrance(f.ctx, holder(1), 1, e1.ID)
	require.NoError(t, err)

	list, err := f.engine.GetTokenBookings(f.ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].IsActive)
	assert.True(t, list[1].IsActive)
	assert.Equal(t, 2, list[1].EntranceNumber)

	_, err = f.engine.GetTokenBookings(f.ctx, 404)
	assert.ErrorIs(t, err, model.ErrTokenNotFound)
}

func TestPolicyAdministration(t *testing.T) {
	f := newFixture(t, service.WithMaxCancellations(4))

	n, err := f.engine.MaxCancellations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.ErrorIs(t, f.engine.SetMaxCancellations(f.ctx, holder(1), 9), model.ErrUnauthorized)
	assert.ErrorIs(t, f.engine.SetMaxCancellations(f.ctx, admin, -1), model.ErrInvalidPolicy)
	require.NoError(t, f.engine.SetMaxCancellations(f.ctx, admin, 0))
	n, _ = f.engine.MaxCancellations(f.ctx)
	assert.Equal(t, 0, n)

	assert.ErrorIs(t, f.engine.SetTokenEntrances(f.ctx, holder(1), 1, 3), model.ErrUnauthorized)
	assert.ErrorIs(t, f.engine.SetTokenEntrances(f.ctx, admin, 1, -2), model.ErrInvalidEntrances)
	assert.ErrorIs(t, f.engine.SetTokenEntrances(f.ctx, admin, 404, 2), model.ErrTokenNotFound)
}

func TestConcurrentBookingsForLastSlot(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 1)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		full    int
	)
	start := make(chan struct{})
	for id := uint64(0); id < n; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			<-start
			_, err := f.engine.BookEntrance(f.ctx, holder(id), id, e.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, model.ErrEventFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, full)
	got, _ := f.registry.GetEventDetails(f.ctx, e.ID)
	assert.Equal(t, 1, got.BookedCount)
}

func TestConcurrentBookAndCancelKeepsCountsConsistent(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 3)
	require.NoError(t, f.engine.SetMaxCancellations(f.ctx, admin, 1000))

	var wg sync.WaitGroup
	for id := uint64(0); id < 6; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := f.engine.BookEntrance(f.ctx, holder(id), id, e.ID); err == nil {
					_, _ = f.engine.CancelBooking(f.ctx, holder(id), id, e.ID)
				}
			}
		}(id)
	}
	wg.Wait()

	got, _ := f.registry.GetEventDetails(f.ctx, e.ID)
	assert.Equal(t, 0, got.BookedCount)
	for id := uint64(0); id < 6; id++ {
		active, err := f.store.FindActiveBooking(f.ctx, id, e.ID)
		require.NoError(t, err)
		assert.Nil(t, active)
	}
}

func TestFailedBookingLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	e := f.createEvent(t, 1)
	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	_, err = f.engine.BookEntrance(f.ctx, holder(2), 2, e.ID)
	require.ErrorIs(t, err, model.ErrEventFull)

	list, err := f.engine.GetTokenBookings(f.ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, list)
	sum, err := f.engine.GetAvailableEntrances(f.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Available)
}

func TestCancellationWindow(t *testing.T) {
	f := newFixture(t, service.WithCancellationCutoff(48*time.Hour))
	e := f.createEvent(t, 5)
	cutoff := e.Date.Add(-48 * time.Hour)

	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)
	_, err = f.engine.BookEntrance(f.ctx, holder(2), 2, e.ID)
	require.NoError(t, err)

	f.clk.Set(cutoff)
	_, err = f.engine.CancelBooking(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err, "the cutoff instant itself is still open")

	f.clk.Set(cutoff.Add(time.Nanosecond))
	_, err = f.engine.CancelBooking(f.ctx, holder(2), 2, e.ID)
	assert.ErrorIs(t, err, model.ErrCancellationWindowClosed)

	got, err := f.registry.GetEventDetails(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BookedCount)
	n, err := f.engine.GetCancellationCount(f.ctx, 2, e.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancellationCutoffDisabled(t *testing.T) {
	f := newFixture(t, service.WithCancellationCutoff(0))
	e := f.createEvent(t, 5)
	_, err := f.engine.BookEntrance(f.ctx, holder(1), 1, e.ID)
	require.NoError(t, err)

	f.clk.Set(e.Date.Add(-time.Minute))
	_, err = f.engine.CancelBooking(f.ctx, holder(1), 1, e.ID)
	assert.NoError(t, err)
}

func TestCheckInRedeemsEventAccess(t *testing.T) {
	grantAccess := func(t *testing.T, f *fixture, tokenID uint64, value int64) model.Benefit {
		t.Helper()
		b, err := f.ledger.GrantBenefit(f.ctx, admin, service.GrantInput{
			TokenID: tokenID, Type: model.BenefitEventAccess, Value: value, Duration: 30 * day,
		})
		require.NoError(t, err)
		return b
	}
	accessEvent := func(t *testing.T, f *fixture) model.Event {
		t.Helper()
		e, err := f.registry.CreateEvent(f.ctx, admin, model.NewEvent{
			Name: "Yacht gala", Location: "Marina Bay", Date: epoch.Add(7 * day), MaxCapacity: 5, AccessBenefit: true,
		})
		require.NoError(t, err)
		require.True(t, e.AccessBenefit)
		return e
	}
	checkIn := func(t *testing.T, f *fixture, tokenID uint64, e model.Event) {
		t.Helper()
		_, err := f.engine.BookEntrance(f.ctx, holder(tokenID), tokenID, e.ID)
		require.NoError(t, err)
		f.clk.Set(e.Date)
		_, err = f.engine.CheckIn(f.ctx, admin, tokenID, e.ID)
		require.NoError(t, err)
	}

	t.Run("draws one unit", func(t *testing.T) {
		f := newFixture(t)
		grantAccess(t, f, 1, 3)
		checkIn(t, f, 1, accessEvent(t, f))

		list, err := f.ledger.ListBenefits(f.ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), list[0].RemainingValue)
		assert.Contains(t, f.notes.Kinds(), model.KindBenefitConsumed)
	})

	t.Run("skips redeemed benefits", func(t *testing.T) {
		f := newFixture(t)
		first := grantAccess(t, f, 1, 1)
		_, err := f.ledger.ConsumeBenefit(f.ctx, holder(1), 1, first.Index, 1)
		require.NoError(t, err)
		grantAccess(t, f, 1, 2)

		checkIn(t, f, 1, accessEvent(t, f))

		list, err := f.ledger.ListBenefits(f.ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, int64(0), list[0].RemainingValue)
		assert.Equal(t, int64(1), list[1].RemainingValue)
	})

	t.Run("check-in stands without a credit", func(t *testing.T) {
		f := newFixture(t)
		checkIn(t, f, 1, accessEvent(t, f))

		bookings, err := f.engine.GetTokenBookings(f.ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, bookings[0].CheckedInAt)
	})

	t.Run("ordinary events leave benefits alone", func(t *testing.T) {
		f := newFixture(t)
		grantAccess(t, f, 1, 3)
		checkIn(t, f, 1, f.createEvent(t, 5))

		list, err := f.ledger.ListBenefits(f.ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), list[0].RemainingValue)
	})
}
