package model

import "errors"

var (
	ErrUnauthorized              = errors.New("caller is not authorized")
	ErrTokenNotFound             = errors.New("token not found")
	ErrNotTokenOwner             = errors.New("caller does not own the token")
	ErrMerchantNotAuthorized     = errors.New("not an authorized merchant")
	ErrInvalidBenefit            = errors.New("invalid benefit")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrBenefitNotFound           = errors.New("benefit not found")
	ErrBenefitExpired            = errors.New("benefit expired")
	ErrBenefitExhausted          = errors.New("benefit exhausted")
	ErrEventNotFound             = errors.New("event not found")
	ErrEventInactive             = errors.New("event is not active")
	ErrEventFull                 = errors.New("event is full")
	ErrEventNotStarted           = errors.New("event not started")
	ErrInvalidCapacity           = errors.New("invalid capacity")
	ErrInvalidEntrances          = errors.New("invalid entrance allowance")
	ErrInvalidPolicy             = errors.New("invalid cancellation policy")
	ErrInvalidAddress            = errors.New("invalid address")
	ErrAlreadyBooked             = errors.New("already booked")
	ErrNoActiveBooking           = errors.New("no active booking")
	ErrAlreadyCheckedIn          = errors.New("already checked in")
	ErrCancellationLimitExceeded = errors.New("cancellation limit exceeded")
	ErrCancellationWindowClosed  = errors.New("cancellation window closed")
	ErrNoEntrancesRemaining      = errors.New("no entrances remaining")

	// ErrConflict is returned by stores when a concurrent transaction won a
	// race (deadlock victim, duplicate active booking).  Retrying is safe.
	ErrConflict = errors.New("concurrent update conflict")
)

// IsRetryable reports whether the same request may succeed if repeated
// later without any other change by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEventFull) || errors.Is(err, ErrConflict)
}
