package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/membership-ledger/internal/model"
)

const benefitColumns = `token_id, benefit_index, ref, benefit_type, value, remaining_value, expires_at, is_redeemed, granted_at`

// AppendBenefit inserts b at the next index of its token.  The caller must
// hold the token lock so that two grants cannot pick the same index.
func (s *Store) AppendBenefit(ctx context.Context, b *model.Benefit) error {
	var next int
	if err := s.queryRow(ctx,
		"SELECT COALESCE(MAX(benefit_index) + 1, 0) FROM benefits WHERE token_id = ?", b.TokenID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next benefit index: %w", err)
	}
	b.Index = next

	_, err := s.exec(ctx,
		`INSERT INTO benefits (`+benefitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.TokenID, b.Index, b.Ref, string(b.Type), b.Value, b.RemainingValue, b.ExpirationTime, b.IsRedeemed, b.GrantedAt)
	if isDuplicate(err) {
		return errors.Join(model.ErrConflict, err)
	}
	return err
}

func (s *Store) ListBenefits(ctx context.Context, tokenID uint64) ([]model.Benefit, error) {
	rows, err := s.query(ctx,
		`SELECT `+benefitColumns+` FROM benefits WHERE token_id = ? ORDER BY benefit_index`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Benefit{}
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBenefitForUpdate(ctx context.Context, tokenID uint64, index int) (model.Benefit, error) {
	row := s.queryRow(ctx, forUpdate(ctx,
		`SELECT `+benefitColumns+` FROM benefits WHERE token_id = ? AND benefit_index = ?`), tokenID, index)
	b, err := scanBenefit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Benefit{}, model.ErrBenefitNotFound
	}
	return b, err
}

// SaveBenefit writes the mutable columns back.
func (s *Store) SaveBenefit(ctx context.Context, b model.Benefit) error {
	res, err := s.exec(ctx,
		"UPDATE benefits SET remaining_value = ?, is_redeemed = ? WHERE token_id = ? AND benefit_index = ?",
		b.RemainingValue, b.IsRedeemed, b.TokenID, b.Index)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetBenefitForUpdate(ctx, b.TokenID, b.Index); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBenefit(sc scanner) (model.Benefit, error) {
	var (
		b   model.Benefit
		typ string
	)
	err := sc.Scan(&b.TokenID, &b.Index, &b.Ref, &typ, &b.Value, &b.RemainingValue, &b.ExpirationTime, &b.IsRedeemed, &b.GrantedAt)
	b.Type = model.BenefitType(typ)
	return b, err
}
