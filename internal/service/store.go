package service

import (
	"context"
	"time"

	"github.com/iliyamo/membership-ledger/internal/model"
)

// TxRunner runs fn as one atomic unit.  Calls made with the context passed
// to fn join the same transaction; a nested WithTx joins the outer one.
// When fn returns an error every write made inside it is undone.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// IdentityResolver answers who currently holds a membership token.
type IdentityResolver interface {
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
}

// TokenStore holds per-token state that is not part of the benefit list.
type TokenStore interface {
	IdentityResolver
	// LockToken serializes concurrent mutations of one token and fails
	// with model.ErrTokenNotFound for unknown tokens.
	LockToken(ctx context.Context, tokenID uint64) error
	GetEntranceAllowance(ctx context.Context, tokenID uint64) (total int, ok bool, err error)
	SetEntranceAllowance(ctx context.Context, tokenID uint64, total int) error
}

type BenefitStore interface {
	// AppendBenefit stores b at the end of its token's list and sets b.Index.
	AppendBenefit(ctx context.Context, b *model.Benefit) error
	ListBenefits(ctx context.Context, tokenID uint64) ([]model.Benefit, error)
	GetBenefitForUpdate(ctx context.Context, tokenID uint64, index int) (model.Benefit, error)
	SaveBenefit(ctx context.Context, b model.Benefit) error
}

type MerchantStore interface {
	IsMerchant(ctx context.Context, address string) (bool, error)
	SetMerchant(ctx context.Context, address string, authorized bool) error
}

type EventStore interface {
	// CreateEvent assigns the next sequential ID to e and stores it.
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id uint64) (model.Event, error)
	GetEventForUpdate(ctx context.Context, id uint64) (model.Event, error)
	SaveEvent(ctx context.Context, e model.Event) error
	ListEvents(ctx context.Context) ([]model.Event, error)
	// ListActiveEventsBefore returns active events dated strictly before t.
	ListActiveEventsBefore(ctx context.Context, t time.Time) ([]model.Event, error)
}

type BookingStore interface {
	FindActiveBooking(ctx context.Context, tokenID, eventID uint64) (*model.Booking, error)
	CountBookings(ctx context.Context, tokenID uint64) (int, error)
	CountActiveBookings(ctx context.Context, tokenID uint64) (int, error)
	// CountCancellations counts inactive bookings for the pair.
	CountCancellations(ctx context.Context, tokenID, eventID uint64) (int, error)
	InsertBooking(ctx context.Context, b model.Booking) error
	SaveBooking(ctx context.Context, b model.Booking) error
	ListBookings(ctx context.Context, tokenID uint64) ([]model.Booking, error)
}

type SettingsStore interface {
	GetMaxCancellations(ctx context.Context) (n int, ok bool, err error)
	SetMaxCancellations(ctx context.Context, n int) error
}

// LedgerRepository is what the BenefitLedger needs from storage.
type LedgerRepository interface {
	TxRunner
	TokenStore
	BenefitStore
	MerchantStore
}

// RegistryRepository is what the EventRegistry needs from storage.
type RegistryRepository interface {
	TxRunner
	EventStore
}

// EngineRepository is what the BookingEngine needs from storage.
type EngineRepository interface {
	TxRunner
	TokenStore
	BookingStore
	SettingsStore
}

// Store is implemented by both the MySQL repository and the in-memory store.
type Store interface {
	TxRunner
	TokenStore
	BenefitStore
	MerchantStore
	EventStore
	BookingStore
	SettingsStore
}
