package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/membership-ledger/internal/model"
	"github.com/iliyamo/membership-ledger/internal/service"
)

var _ service.Store = (*Store)(nil)

func TestWithTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.RegisterToken(ctx, 1, "0xA"))
	ev := model.Event{Name: "Regatta", MaxCapacity: 2, IsActive: true}
	require.NoError(t, s.CreateEvent(ctx, &ev))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.GetEventForUpdate(ctx, ev.ID)
		require.NoError(t, err)
		e.BookedCount = 1
		require.NoError(t, s.SaveEvent(ctx, e))
		require.NoError(t, s.InsertBooking(ctx, model.Booking{Ref: "bkg_1", TokenID: 1, EventID: ev.ID, EntranceNumber: 1, IsActive: true}))
		require.NoError(t, s.SetEntranceAllowance(ctx, 1, 5))
		require.NoError(t, s.SetMaxCancellations(ctx, 3))
		b := model.Benefit{TokenID: 1, Value: 10, RemainingValue: 10}
		require.NoError(t, s.AppendBenefit(ctx, &b))
		other := model.Event{Name: "Gala", MaxCapacity: 1, IsActive: true}
		require.NoError(t, s.CreateEvent(ctx, &other))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)

	active, err := s.FindActiveBooking(ctx, 1, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, ok, _ := s.GetEntranceAllowance(ctx, 1)
	assert.False(t, ok)
	_, ok, _ = s.GetMaxCancellations(ctx)
	assert.False(t, ok)

	benefits, _ := s.ListBenefits(ctx, 1)
	assert.Empty(t, benefits)

	events, _ := s.ListEvents(ctx)
	assert.Len(t, events, 1)
}

func TestNestedWithTxJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.RegisterToken(ctx, 7, "0xB"))

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.WithTx(ctx, func(ctx context.Context) error {
			return s.SetEntranceAllowance(ctx, 7, 4)
		}); err != nil {
			return err
		}
		return model.ErrEventFull
	})
	require.ErrorIs(t, err, model.ErrEventFull)

	_, ok, _ := s.GetEntranceAllowance(ctx, 7)
	assert.False(t, ok, "inner write must roll back with the outer transaction")
}

func TestEventIDsAreSequentialFromZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	for want := uint64(0); want < 3; want++ {
		e := model.Event{MaxCapacity: 1, IsActive: true}
		require.NoError(t, s.CreateEvent(ctx, &e))
		assert.Equal(t, want, e.ID)
	}
	_, err := s.GetEvent(ctx, 3)
	assert.ErrorIs(t, err, model.ErrEventNotFound)
}

func TestBookingHistory(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertBooking(ctx, model.Booking{Ref: "a", TokenID: 1, EventID: 0, EntranceNumber: 1, IsActive: true, BookedAt: now}))
	assert.ErrorIs(t, s.InsertBooking(ctx, model.Booking{Ref: "b", TokenID: 1, EventID: 0, EntranceNumber: 2, IsActive: true}), model.ErrConflict)

	first, err := s.FindActiveBooking(ctx, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, first)
	first.IsActive = false
	first.CancelledAt = &now
	require.NoError(t, s.SaveBooking(ctx, *first))

	require.NoError(t, s.InsertBooking(ctx, model.Booking{Ref: "c", TokenID: 1, EventID: 0, EntranceNumber: 2, IsActive: true}))

	n, _ := s.CountCancellations(ctx, 1, 0)
	assert.Equal(t, 1, n)
	n, _ = s.CountActiveBookings(ctx, 1)
	assert.Equal(t, 1, n)
	n, _ = s.CountBookings(ctx, 1)
	assert.Equal(t, 2, n)

	list, _ := s.ListBookings(ctx, 1)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Ref)
	assert.False(t, list[0].IsActive)
	assert.Equal(t, "c", list[1].Ref)
}

func TestSnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := model.Benefit{TokenID: 2, Value: 5, RemainingValue: 5}
	require.NoError(t, s.AppendBenefit(ctx, &b))

	list, _ := s.ListBenefits(ctx, 2)
	list[0].RemainingValue = 0

	again, _ := s.GetBenefitForUpdate(ctx, 2, 0)
	assert.Equal(t, int64(5), again.RemainingValue)
}

func TestMerchants(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SetMerchant(ctx, "0xm", true))
	ok, _ := s.IsMerchant(ctx, "0xm")
	assert.True(t, ok)
	require.NoError(t, s.SetMerchant(ctx, "0xm", false))
	ok, _ = s.IsMerchant(ctx, "0xm")
	assert.False(t, ok)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.RegisterToken(ctx, 1, "0xA"))

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.SetEntranceAllowance(ctx, 1, 4))
			b := model.Benefit{TokenID: 1, Value: 10, RemainingValue: 10}
			require.NoError(t, s.AppendBenefit(ctx, &b))
			panic("half way")
		})
	})

	_, ok, err := s.GetEntranceAllowance(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	benefits, _ := s.ListBenefits(ctx, 1)
	assert.Empty(t, benefits)

	// The lock was released.
	require.NoError(t, s.SetEntranceAllowance(ctx, 1, 2))
}

func TestEmptyListsAreNotNil(t *testing.T) {
	ctx := context.Background()
	s := New()

	benefits, err := s.ListBenefits(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, benefits)
	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.NotNil(t, events)
	bookings, err := s.ListBookings(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, bookings)
}
