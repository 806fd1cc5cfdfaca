// Package memory is an in-process implementation of the service storage
// interfaces.  The whole store is one serialization domain: a transaction
// holds the write lock from start to finish and records an undo step for
// every write, replaying them in reverse when the transaction fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/membership-ledger/internal/model"
)

type txKey struct{}

type tx struct {
	undo []func()
}

func (t *tx) record(fn func()) { t.undo = append(t.undo, fn) }

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func txFromContext(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

type pairKey struct {
	token uint64
	event uint64
}

// Store keeps all state in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	tokens     map[uint64]model.MembershipToken
	allowances map[uint64]int
	benefits   map[uint64][]model.Benefit
	events     []model.Event
	bookings   []model.Booking // in insertion order
	refs       map[string]int  // booking ref -> position in bookings
	active     map[pairKey]int // pair -> position of its active booking
	merchants  map[string]bool
	maxCancel  *int
}

func New() *Store {
	return &Store{
		tokens:     make(map[uint64]model.MembershipToken),
		allowances: make(map[uint64]int),
		benefits:   make(map[uint64][]model.Benefit),
		refs:       make(map[string]int),
		active:     make(map[pairKey]int),
		merchants:  make(map[string]bool),
	}
}

// WithTx runs fn with the write lock held.  A nested call joins the
// running transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	t := &tx{}
	done := false
	defer func() {
		// Also reached when fn panics.
		if !done {
			t.rollback()
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	done = true
	return nil
}

// read runs fn under the read lock unless ctx already holds the write lock.
func (s *Store) read(ctx context.Context, fn func()) {
	if txFromContext(ctx) != nil {
		fn()
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// write runs fn inside the caller's transaction, or a new one.
func (s *Store) write(ctx context.Context, fn func(t *tx) error) error {
	if t := txFromContext(ctx); t != nil {
		return fn(t)
	}
	return s.WithTx(ctx, func(ctx context.Context) error {
		return fn(txFromContext(ctx))
	})
}

// RegisterToken records the holder of a token.  Token issuance happens
// elsewhere; this mirrors it into the store.
func (s *Store) RegisterToken(ctx context.Context, tokenID uint64, holder string) error {
	return s.write(ctx, func(t *tx) error {
		prev, had := s.tokens[tokenID]
		s.tokens[tokenID] = model.MembershipToken{ID: tokenID, Holder: model.NormalizeAddress(holder)}
		t.record(func() {
			if had {
				s.tokens[tokenID] = prev
			} else {
				delete(s.tokens, tokenID)
			}
		})
		return nil
	})
}

func (s *Store) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	var (
		tok model.MembershipToken
		ok  bool
	)
	s.read(ctx, func() { tok, ok = s.tokens[tokenID] })
	if !ok {
		return "", model.ErrTokenNotFound
	}
	return tok.Holder, nil
}

// LockToken only checks existence; the store lock already serializes.
func (s *Store) LockToken(ctx context.Context, tokenID uint64) error {
	_, err := s.OwnerOf(ctx, tokenID)
	return err
}

func (s *Store) GetEntranceAllowance(ctx context.Context, tokenID uint64) (int, bool, error) {
	var (
		n  int
		ok bool
	)
	s.read(ctx, func() { n, ok = s.allowances[tokenID] })
	return n, ok, nil
}

func (s *Store) SetEntranceAllowance(ctx context.Context, tokenID uint64, total int) error {
	return s.write(ctx, func(t *tx) error {
		prev, had := s.allowances[tokenID]
		s.allowances[tokenID] = total
		t.record(func() {
			if had {
				s.allowances[tokenID] = prev
			} else {
				delete(s.allowances, tokenID)
			}
		})
		return nil
	})
}

func (s *Store) AppendBenefit(ctx context.Context, b *model.Benefit) error {
	return s.write(ctx, func(t *tx) error {
		list := s.benefits[b.TokenID]
		b.Index = len(list)
		s.benefits[b.TokenID] = append(list, *b)
		token := b.TokenID
		t.record(func() {
			cur := s.benefits[token]
			if len(cur) <= 1 {
				delete(s.benefits, token)
				return
			}
			s.benefits[token] = cur[:len(cur)-1]
		})
		return nil
	})
}

func (s *Store) ListBenefits(ctx context.Context, tokenID uint64) ([]model.Benefit, error) {
	var out []model.Benefit
	s.read(ctx, func() {
		out = append([]model.Benefit{}, s.benefits[tokenID]...)
	})
	return out, nil
}

func (s *Store) GetBenefitForUpdate(ctx context.Context, tokenID uint64, index int) (model.Benefit, error) {
	var (
		b  model.Benefit
		ok bool
	)
	s.read(ctx, func() {
		list := s.benefits[tokenID]
		if index >= 0 && index < len(list) {
			b, ok = list[index], true
		}
	})
	if !ok {
		return model.Benefit{}, model.ErrBenefitNotFound
	}
	return b, nil
}

func (s *Store) SaveBenefit(ctx context.Context, b model.Benefit) error {
	return s.write(ctx, func(t *tx) error {
		list := s.benefits[b.TokenID]
		if b.Index < 0 || b.Index >= len(list) {
			return model.ErrBenefitNotFound
		}
		prev := list[b.Index]
		list[b.Index] = b
		t.record(func() { s.benefits[prev.TokenID][prev.Index] = prev })
		return nil
	})
}

func (s *Store) IsMerchant(ctx context.Context, address string) (bool, error) {
	var ok bool
	s.read(ctx, func() { ok = s.merchants[address] })
	return ok, nil
}

func (s *Store) SetMerchant(ctx context.Context, address string, authorized bool) error {
	return s.write(ctx, func(t *tx) error {
		prev, had := s.merchants[address]
		if authorized {
			s.merchants[address] = true
		} else {
			delete(s.merchants, address)
		}
		t.record(func() {
			if had {
				s.merchants[address] = prev
			} else {
				delete(s.merchants, address)
			}
		})
		return nil
	})
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	return s.write(ctx, func(t *tx) error {
		e.ID = uint64(len(s.events))
		s.events = append(s.events, *e)
		t.record(func() { s.events = s.events[:len(s.events)-1] })
		return nil
	})
}

func (s *Store) GetEvent(ctx context.Context, id uint64) (model.Event, error) {
	var (
		e  model.Event
		ok bool
	)
	s.read(ctx, func() {
		if id < uint64(len(s.events)) {
			e, ok = s.events[id], true
		}
	})
	if !ok {
		return model.Event{}, model.ErrEventNotFound
	}
	return e, nil
}

func (s *Store) GetEventForUpdate(ctx context.Context, id uint64) (model.Event, error) {
	return s.GetEvent(ctx, id)
}

func (s *Store) SaveEvent(ctx context.Context, e model.Event) error {
	return s.write(ctx, func(t *tx) error {
		if e.ID >= uint64(len(s.events)) {
			return model.ErrEventNotFound
		}
		prev := s.events[e.ID]
		s.events[e.ID] = e
		t.record(func() { s.events[prev.ID] = prev })
		return nil
	})
}

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	var out []model.Event
	s.read(ctx, func() { out = append([]model.Event{}, s.events...) })
	return out, nil
}

func (s *Store) ListActiveEventsBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error) {
	out := []model.Event{}
	s.read(ctx, func() {
		for _, e := range s.events {
			if e.IsActive && e.Date.Before(cutoff) {
				out = append(out, e)
			}
		}
	})
	return out, nil
}

func (s *Store) FindActiveBooking(ctx context.Context, tokenID, eventID uint64) (*model.Booking, error) {
	var found *model.Booking
	s.read(ctx, func() {
		if pos, ok := s.active[pairKey{tokenID, eventID}]; ok {
			b := cloneBooking(s.bookings[pos])
			found = &b
		}
	})
	return found, nil
}

func (s *Store) CountBookings(ctx context.Context, tokenID uint64) (int, error) {
	return s.countBookings(ctx, func(b model.Booking) bool { return b.TokenID == tokenID }), nil
}

func (s *Store) CountActiveBookings(ctx context.Context, tokenID uint64) (int, error) {
	return s.countBookings(ctx, func(b model.Booking) bool { return b.TokenID == tokenID && b.IsActive }), nil
}

func (s *Store) CountCancellations(ctx context.Context, tokenID, eventID uint64) (int, error) {
	return s.countBookings(ctx, func(b model.Booking) bool {
		return b.TokenID == tokenID && b.EventID == eventID && !b.IsActive
	}), nil
}

func (s *Store) countBookings(ctx context.Context, match func(model.Booking) bool) int {
	n := 0
	s.read(ctx, func() {
		for _, b := range s.bookings {
			if match(b) {
				n++
			}
		}
	})
	return n
}

func (s *Store) InsertBooking(ctx context.Context, b model.Booking) error {
	return s.write(ctx, func(t *tx) error {
		key := pairKey{b.TokenID, b.EventID}
		if _, dup := s.active[key]; dup && b.IsActive {
			return model.ErrConflict
		}
		pos := len(s.bookings)
		s.bookings = append(s.bookings, cloneBooking(b))
		s.refs[b.Ref] = pos
		if b.IsActive {
			s.active[key] = pos
		}
		t.record(func() {
			s.bookings = s.bookings[:pos]
			delete(s.refs, b.Ref)
			if b.IsActive {
				delete(s.active, key)
			}
		})
		return nil
	})
}

func (s *Store) SaveBooking(ctx context.Context, b model.Booking) error {
	return s.write(ctx, func(t *tx) error {
		pos, ok := s.refs[b.Ref]
		if !ok {
			return model.ErrNoActiveBooking
		}
		prev := s.bookings[pos]
		key := pairKey{prev.TokenID, prev.EventID}
		s.bookings[pos] = cloneBooking(b)
		if prev.IsActive && !b.IsActive {
			delete(s.active, key)
		}
		t.record(func() {
			s.bookings[pos] = prev
			if prev.IsActive {
				s.active[key] = pos
			}
		})
		return nil
	})
}

func (s *Store) ListBookings(ctx context.Context, tokenID uint64) ([]model.Booking, error) {
	out := []model.Booking{}
	s.read(ctx, func() {
		for _, b := range s.bookings {
			if b.TokenID == tokenID {
				out = append(out, cloneBooking(b))
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntranceNumber < out[j].EntranceNumber })
	return out, nil
}

func (s *Store) GetMaxCancellations(ctx context.Context) (int, bool, error) {
	var (
		n  int
		ok bool
	)
	s.read(ctx, func() {
		if s.maxCancel != nil {
			n, ok = *s.maxCancel, true
		}
	})
	return n, ok, nil
}

func (s *Store) SetMaxCancellations(ctx context.Context, n int) error {
	return s.write(ctx, func(t *tx) error {
		prev := s.maxCancel
		s.maxCancel = &n
		t.record(func() { s.maxCancel = prev })
		return nil
	})
}

func cloneBooking(b model.Booking) model.Booking {
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		b.CancelledAt = &at
	}
	if b.CheckedInAt != nil {
		at := *b.CheckedInAt
		b.CheckedInAt = &at
	}
	return b
}
