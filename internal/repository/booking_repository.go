package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/membership-ledger/internal/model"
)

const bookingColumns = `ref, token_id, event_id, entrance_number, is_active, booked_at, cancelled_at, checked_in_at`

func (s *Store) FindActiveBooking(ctx context.Context, tokenID, eventID uint64) (*model.Booking, error) {
	row := s.queryRow(ctx, forUpdate(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE token_id = ? AND event_id = ? AND is_active = TRUE`),
		tokenID, eventID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) CountBookings(ctx context.Context, tokenID uint64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM bookings WHERE token_id = ?", tokenID)
}

func (s *Store) CountActiveBookings(ctx context.Context, tokenID uint64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM bookings WHERE token_id = ? AND is_active = TRUE", tokenID)
}

func (s *Store) CountCancellations(ctx context.Context, tokenID, eventID uint64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM bookings WHERE token_id = ? AND event_id = ? AND is_active = FALSE", tokenID, eventID)
}

func (s *Store) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	err := s.queryRow(ctx, q, args...).Scan(&n)
	return n, err
}

// InsertBooking stores a new booking.  The unique key on
// (token_id, active_event_id) rejects a second active booking for the
// same pair with model.ErrConflict.
func (s *Store) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := s.exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Ref, b.TokenID, b.EventID, b.EntranceNumber, b.IsActive, b.BookedAt, b.CancelledAt, b.CheckedInAt)
	if isDuplicate(err) {
		return errors.Join(model.ErrConflict, err)
	}
	return err
}

func (s *Store) SaveBooking(ctx context.Context, b model.Booking) error {
	res, err := s.exec(ctx,
		"UPDATE bookings SET is_active = ?, cancelled_at = ?, checked_in_at = ? WHERE ref = ?",
		b.IsActive, b.CancelledAt, b.CheckedInAt, b.Ref)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNoActiveBooking
	}
	return nil
}

func (s *Store) ListBookings(ctx context.Context, tokenID uint64) ([]model.Booking, error) {
	rows, err := s.query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE token_id = ? ORDER BY entrance_number`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(sc scanner) (model.Booking, error) {
	var (
		b                    model.Booking
		cancelled, checkedIn sql.NullTime
	)
	err := sc.Scan(&b.Ref, &b.TokenID, &b.EventID, &b.EntranceNumber, &b.IsActive, &b.BookedAt, &cancelled, &checkedIn)
	if cancelled.Valid {
		t := cancelled.Time
		b.CancelledAt = &t
	}
	if checkedIn.Valid {
		t := checkedIn.Time
		b.CheckedInAt = &t
	}
	return b, err
}
