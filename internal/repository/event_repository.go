package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/membership-ledger/internal/model"
)

const eventColumns = `id, name, location, event_date, max_capacity, booked_count, is_active, created_at, access_benefit`

// CreateEvent draws the next ID from the sequences table under a row lock
// so that IDs stay gapless and start at zero.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		var next uint64
		if err := s.queryRow(ctx, forUpdate(ctx, "SELECT next_value FROM sequences WHERE name = 'events'")).Scan(&next); err != nil {
			return fmt.Errorf("read event sequence: %w", err)
		}
		if _, err := s.exec(ctx, "UPDATE sequences SET next_value = ? WHERE name = 'events'", next+1); err != nil {
			return fmt.Errorf("advance event sequence: %w", err)
		}
		e.ID = next
		_, err := s.exec(ctx,
			`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Name, e.Location, e.Date, e.MaxCapacity, e.BookedCount, e.IsActive, e.CreatedAt, e.AccessBenefit)
		return err
	})
}

func (s *Store) GetEvent(ctx context.Context, id uint64) (model.Event, error) {
	return s.getEvent(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
}

func (s *Store) GetEventForUpdate(ctx context.Context, id uint64) (model.Event, error) {
	return s.getEvent(ctx, forUpdate(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?"), id)
}

func (s *Store) getEvent(ctx context.Context, q string, id uint64) (model.Event, error) {
	e, err := scanEvent(s.queryRow(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, model.ErrEventNotFound
	}
	return e, err
}

// SaveEvent writes the slot counter and the active flag.  The CHECK
// constraint on booked_count backs up the capacity rule.
func (s *Store) SaveEvent(ctx context.Context, e model.Event) error {
	_, err := s.exec(ctx, "UPDATE events SET booked_count = ?, is_active = ? WHERE id = ?", e.BookedCount, e.IsActive, e.ID)
	return err
}

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.listEvents(ctx, "SELECT "+eventColumns+" FROM events ORDER BY id")
}

func (s *Store) ListActiveEventsBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error) {
	return s.listEvents(ctx, "SELECT "+eventColumns+" FROM events WHERE is_active = TRUE AND event_date < ? ORDER BY id", cutoff)
}

func (s *Store) listEvents(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(sc scanner) (model.Event, error) {
	var e model.Event
	err := sc.Scan(&e.ID, &e.Name, &e.Location, &e.Date, &e.MaxCapacity, &e.BookedCount, &e.IsActive, &e.CreatedAt, &e.AccessBenefit)
	return e, err
}
