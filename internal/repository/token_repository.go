package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/membership-ledger/internal/model"
)

// RegisterToken upserts the holder of a membership token.  Token
// issuance and transfers happen on the issuing side; this keeps the local
// ownership mirror current.
func (s *Store) RegisterToken(ctx context.Context, tokenID uint64, holder string) error {
	_, err := s.exec(ctx,
		`INSERT INTO membership_tokens (token_id, holder_address) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE holder_address = VALUES(holder_address)`,
		tokenID, model.NormalizeAddress(holder))
	return err
}

// OwnerOf returns the holder address of tokenID.
func (s *Store) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	var holder string
	err := s.queryRow(ctx, "SELECT holder_address FROM membership_tokens WHERE token_id = ?", tokenID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrTokenNotFound
	}
	return holder, err
}

// LockToken takes the token row lock.  All mutations touching a token
// lock it before any event row, which keeps lock order fixed.
func (s *Store) LockToken(ctx context.Context, tokenID uint64) error {
	var id uint64
	err := s.queryRow(ctx, forUpdate(ctx, "SELECT token_id FROM membership_tokens WHERE token_id = ?"), tokenID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrTokenNotFound
	}
	return err
}

// GetEntranceAllowance returns the configured allowance; ok is false when
// none was ever set.
func (s *Store) GetEntranceAllowance(ctx context.Context, tokenID uint64) (int, bool, error) {
	var total sql.NullInt64
	err := s.queryRow(ctx, "SELECT total_entrances FROM membership_tokens WHERE token_id = ?", tokenID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, model.ErrTokenNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return int(total.Int64), total.Valid, nil
}

func (s *Store) SetEntranceAllowance(ctx context.Context, tokenID uint64, total int) error {
	res, err := s.exec(ctx, "UPDATE membership_tokens SET total_entrances = ? WHERE token_id = ?", total, tokenID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is 0 when the value is unchanged too.
		if _, err := s.OwnerOf(ctx, tokenID); err != nil {
			return err
		}
	}
	return nil
}
