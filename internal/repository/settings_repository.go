package repository

import (
	"context"
	"database/sql"
	"errors"
)

const settingMaxCancellations = "max_cancellations_allowed"

func (s *Store) GetMaxCancellations(ctx context.Context) (int, bool, error) {
	var n int
	err := s.queryRow(ctx, "SELECT int_value FROM policy_settings WHERE name = ?", settingMaxCancellations).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *Store) SetMaxCancellations(ctx context.Context, n int) error {
	_, err := s.exec(ctx,
		`INSERT INTO policy_settings (name, int_value) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE int_value = VALUES(int_value)`,
		settingMaxCancellations, n)
	return err
}
