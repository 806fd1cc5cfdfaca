package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/model"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is ordered; the first match wins.
var errorTable = []errorMapping{
	{model.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{model.ErrNotTokenOwner, http.StatusForbidden, "not_token_owner"},
	{model.ErrMerchantNotAuthorized, http.StatusForbidden, "merchant_not_authorized"},

	{model.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{model.ErrBenefitNotFound, http.StatusNotFound, "benefit_not_found"},
	{model.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{model.ErrNoActiveBooking, http.StatusNotFound, "no_active_booking"},

	{model.ErrBenefitExpired, http.StatusGone, "benefit_expired"},

	{model.ErrInvalidCapacity, http.StatusBadRequest, "invalid_capacity"},
	{model.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{model.ErrInvalidBenefit, http.StatusBadRequest, "invalid_benefit"},
	{model.ErrInvalidEntrances, http.StatusBadRequest, "invalid_entrances"},
	{model.ErrInvalidPolicy, http.StatusBadRequest, "invalid_policy"},
	{model.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},

	{model.ErrBenefitExhausted, http.StatusConflict, "benefit_exhausted"},
	{model.ErrEventInactive, http.StatusConflict, "event_inactive"},
	{model.ErrEventFull, http.StatusConflict, "event_full"},
	{model.ErrAlreadyBooked, http.StatusConflict, "already_booked"},
	{model.ErrCancellationLimitExceeded, http.StatusConflict, "cancellation_limit_exceeded"},
	{model.ErrCancellationWindowClosed, http.StatusConflict, "cancellation_window_closed"},
	{model.ErrNoEntrancesRemaining, http.StatusConflict, "no_entrances_remaining"},
	{model.ErrEventNotStarted, http.StatusConflict, "event_not_started"},
	{model.ErrAlreadyCheckedIn, http.StatusConflict, "already_checked_in"},
	{model.ErrConflict, http.StatusConflict, "conflict"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders a service error as {"error": code, "message": text}.
// Internal errors are logged and their text is not exposed.
func (h *Handler) writeError(c echo.Context, err error) error {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Error(err))
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_argument", "message": msg})
}
