package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/metrics"
	"github.com/iliyamo/membership-ledger/internal/model"
)

// BenefitLedger keeps the append-only list of benefits attached to each
// membership token.  Grants are administrative; consumption is done by the
// token owner or an authorized merchant.
type BenefitLedger struct {
	repo LedgerRepository
	auth Authorizer
	opts options
}

func NewBenefitLedger(repo LedgerRepository, auth Authorizer, opts ...Option) *BenefitLedger {
	o := buildOptions(opts)
	o.logger = o.logger.Named("ledger")
	return &BenefitLedger{repo: repo, auth: auth, opts: o}
}

// GrantInput describes a benefit to attach to a token.
type GrantInput struct {
	TokenID  uint64
	Type     model.BenefitType
	Value    int64
	Duration time.Duration
}

// GrantBenefit appends a new benefit to the token's list.  The benefit
// starts with RemainingValue equal to Value and expires Duration after now.
func (l *BenefitLedger) GrantBenefit(ctx context.Context, caller model.Caller, in GrantInput) (model.Benefit, error) {
	if !l.auth.IsAuthorized(ctx, caller) {
		return model.Benefit{}, model.ErrUnauthorized
	}
	if err := model.ValidateGrant(in.Type, in.Value, in.Duration); err != nil {
		return model.Benefit{}, err
	}

	now := l.opts.clock.Now()
	b := model.Benefit{
		TokenID:        in.TokenID,
		Ref:            model.NewRef(model.BenefitRefPrefix),
		Type:           in.Type,
		Value:          in.Value,
		RemainingValue: in.Value,
		ExpirationTime: now.Add(in.Duration),
		GrantedAt:      now,
	}
	err := l.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := l.repo.LockToken(ctx, in.TokenID); err != nil {
			return err
		}
		return l.repo.AppendBenefit(ctx, &b)
	})
	if err != nil {
		return model.Benefit{}, err
	}

	metrics.BenefitsGranted.WithLabelValues(string(b.Type)).Inc()
	l.opts.logger.Info("benefit granted",
		zap.Uint64("token_id", b.TokenID),
		zap.Int("index", b.Index),
		zap.String("ref", b.Ref),
		zap.String("type", string(b.Type)),
		zap.Int64("value", b.Value),
		zap.Time("expires_at", b.ExpirationTime),
	)
	l.opts.notify(ctx, model.KindBenefitGranted, caller, model.Notification{
		TokenID:        ptr(b.TokenID),
		BenefitIndex:   ptr(b.Index),
		BenefitRef:     b.Ref,
		BenefitType:    b.Type,
		Amount:         b.Value,
		RemainingValue: ptr(b.RemainingValue),
	})
	return b, nil
}

// ConsumeBenefit draws amount from the benefit at index.  An amount of
// zero checks that the benefit is still usable without drawing anything,
// which is how discounts are presented.
//
// A consumption attempted at or after the expiration time marks the
// benefit redeemed and fails with ErrBenefitExpired.
func (l *BenefitLedger) ConsumeBenefit(ctx context.Context, caller model.Caller, tokenID uint64, index int, amount int64) (model.Benefit, error) {
	if amount < 0 {
		return model.Benefit{}, fmt.Errorf("%w: amount must not be negative", model.ErrInvalidAmount)
	}

	var (
		result  model.Benefit
		expired bool
	)
	err := l.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := l.repo.LockToken(ctx, tokenID); err != nil {
			return err
		}
		if err := l.checkRedeemer(ctx, caller, tokenID); err != nil {
			return err
		}
		b, err := l.repo.GetBenefitForUpdate(ctx, tokenID, index)
		if err != nil {
			return err
		}

		if b.ExpiredAt(l.opts.clock.Now()) {
			expired = true
			if !b.IsRedeemed {
				b.IsRedeemed = true
				if err := l.repo.SaveBenefit(ctx, b); err != nil {
					return err
				}
			}
			result = b
			return nil
		}
		if b.IsRedeemed || b.RemainingValue < amount || (amount == 0 && b.RemainingValue == 0) {
			return model.ErrBenefitExhausted
		}

		b.RemainingValue -= amount
		if b.RemainingValue == 0 {
			b.IsRedeemed = true
		}
		if amount > 0 {
			if err := l.repo.SaveBenefit(ctx, b); err != nil {
				return err
			}
		}
		result = b
		return nil
	})
	if err == nil && expired {
		err = model.ErrBenefitExpired
	}
	metrics.ObserveConsumption(err)
	if err != nil {
		l.opts.logger.Debug("benefit consumption refused",
			zap.Uint64("token_id", tokenID),
			zap.Int("index", index),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return model.Benefit{}, err
	}

	metrics.BenefitValueConsumed.WithLabelValues(string(result.Type)).Add(float64(amount))
	l.opts.logger.Info("benefit consumed",
		zap.Uint64("token_id", tokenID),
		zap.Int("index", index),
		zap.Int64("amount", amount),
		zap.Int64("remaining", result.RemainingValue),
		zap.String("by", caller.Address),
	)
	l.opts.notify(ctx, model.KindBenefitConsumed, caller, model.Notification{
		TokenID:        ptr(tokenID),
		BenefitIndex:   ptr(index),
		BenefitRef:     result.Ref,
		BenefitType:    result.Type,
		Amount:         amount,
		RemainingValue: ptr(result.RemainingValue),
	})
	return result, nil
}

// checkRedeemer allows the token owner, an authorized merchant or an
// administrator to consume benefits of tokenID.
func (l *BenefitLedger) checkRedeemer(ctx context.Context, caller model.Caller, tokenID uint64) error {
	owner, err := l.repo.OwnerOf(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller.Is(owner) || l.auth.IsAuthorized(ctx, caller) {
		return nil
	}
	ok, err := l.repo.IsMerchant(ctx, model.NormalizeAddress(caller.Address))
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrMerchantNotAuthorized
	}
	return nil
}

// ListBenefits returns the token's benefits in index order.
func (l *BenefitLedger) ListBenefits(ctx context.Context, tokenID uint64) ([]model.Benefit, error) {
	if _, err := l.repo.OwnerOf(ctx, tokenID); err != nil {
		return nil, err
	}
	return l.repo.ListBenefits(ctx, tokenID)
}

// BenefitStatus returns the first benefit of type typ that can still be
// drawn from: not redeemed, not expired and with value left.  ok is false
// when the token holds no such benefit.
func (l *BenefitLedger) BenefitStatus(ctx context.Context, tokenID uint64, typ model.BenefitType) (b model.Benefit, ok bool, err error) {
	list, err := l.ListBenefits(ctx, tokenID)
	if err != nil {
		return model.Benefit{}, false, err
	}
	now := l.opts.clock.Now()
	for _, c := range list {
		if c.Type != typ || c.IsRedeemed || c.RemainingValue <= 0 || c.ExpiredAt(now) {
			continue
		}
		return c, true, nil
	}
	return model.Benefit{}, false, nil
}

// SetMerchantStatus adds or removes an address from the merchant allow-list.
func (l *BenefitLedger) SetMerchantStatus(ctx context.Context, caller model.Caller, address string, authorized bool) error {
	if !l.auth.IsAuthorized(ctx, caller) {
		return model.ErrUnauthorized
	}
	addr := model.NormalizeAddress(address)
	if addr == "" {
		return model.ErrInvalidAddress
	}
	if err := l.repo.WithTx(ctx, func(ctx context.Context) error {
		return l.repo.SetMerchant(ctx, addr, authorized)
	}); err != nil {
		return err
	}
	l.opts.logger.Info("merchant status changed", zap.String("merchant", addr), zap.Bool("authorized", authorized))
	return nil
}
