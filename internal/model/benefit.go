package model

import (
	"fmt"
	"strings"
	"time"
)

// BenefitType classifies a benefit.  The ledger treats all types the same
// way when consuming; the type only selects the grant bounds in
// BenefitRules and tells clients how to present the benefit.
type BenefitType string

const (
	BenefitAllowance   BenefitType = "ALLOWANCE"    // spendable merchant balance
	BenefitEventAccess BenefitType = "EVENT_ACCESS" // admission credits
	BenefitDiscount    BenefitType = "DISCOUNT"     // percentage, presented rather than spent
)

// ParseBenefitType accepts the canonical names and the legacy
// MERCHANT_ALLOWANCE / YACHT_EVENT aliases still used by older clients.
func ParseBenefitType(s string) (BenefitType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALLOWANCE", "MERCHANT_ALLOWANCE":
		return BenefitAllowance, nil
	case "EVENT_ACCESS", "YACHT_EVENT":
		return BenefitEventAccess, nil
	case "DISCOUNT":
		return BenefitDiscount, nil
	}
	return "", fmt.Errorf("%w: unknown benefit type %q", ErrInvalidBenefit, s)
}

// BenefitRule bounds what an administrator may grant for a benefit type.
type BenefitRule struct {
	MinValue    int64
	MaxValue    int64
	MinDuration time.Duration
	MaxDuration time.Duration
}

const day = 24 * time.Hour

// BenefitRules lists the grant bounds per type.
var BenefitRules = map[BenefitType]BenefitRule{
	BenefitAllowance:   {MinValue: 1, MaxValue: 10000, MinDuration: day, MaxDuration: 365 * day},
	BenefitEventAccess: {MinValue: 1, MaxValue: 10, MinDuration: day, MaxDuration: 180 * day},
	BenefitDiscount:    {MinValue: 1, MaxValue: 100, MinDuration: day, MaxDuration: 365 * day},
}

// ValidateGrant checks value and duration against the rule for t.
func ValidateGrant(t BenefitType, value int64, duration time.Duration) error {
	rule, ok := BenefitRules[t]
	if !ok {
		return fmt.Errorf("%w: unknown benefit type %q", ErrInvalidBenefit, t)
	}
	if value < rule.MinValue || value > rule.MaxValue {
		return fmt.Errorf("%w: %s value must be between %d and %d", ErrInvalidBenefit, t, rule.MinValue, rule.MaxValue)
	}
	if duration < rule.MinDuration || duration > rule.MaxDuration {
		return fmt.Errorf("%w: %s duration must be between %d and %d days",
			ErrInvalidBenefit, t, int(rule.MinDuration/day), int(rule.MaxDuration/day))
	}
	return nil
}

// Benefit is one entry of a token's benefit list.  Index is the position
// in that list and never changes once assigned; benefits are never removed.
//
// RemainingValue only decreases.  IsRedeemed becomes true when the
// remaining value reaches zero or when a consumption is attempted at or
// after ExpirationTime, and never goes back to false.
type Benefit struct {
	TokenID        uint64      `json:"token_id"`
	Index          int         `json:"index"`
	Ref            string      `json:"ref"`
	Type           BenefitType `json:"benefit_type"`
	Value          int64       `json:"value"`
	RemainingValue int64       `json:"remaining_value"`
	ExpirationTime time.Time   `json:"expiration_time"`
	IsRedeemed     bool        `json:"is_redeemed"`
	GrantedAt      time.Time   `json:"granted_at"`
}

// ExpiredAt reports whether the benefit is expired at now.  The boundary
// instant counts as expired.
func (b Benefit) ExpiredAt(now time.Time) bool {
	return !now.Before(b.ExpirationTime)
}
