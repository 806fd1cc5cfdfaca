package repository

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) IsMerchant(ctx context.Context, address string) (bool, error) {
	var authorized bool
	err := s.queryRow(ctx, "SELECT authorized FROM merchants WHERE address = ?", address).Scan(&authorized)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return authorized, err
}

func (s *Store) SetMerchant(ctx context.Context, address string, authorized bool) error {
	_, err := s.exec(ctx,
		`INSERT INTO merchants (address, authorized) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE authorized = VALUES(authorized)`,
		address, authorized)
	return err
}
