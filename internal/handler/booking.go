package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// BookEntrance handles POST /v1/tokens/:token_id/bookings with body
// {"event_id": n}.  It returns 201 with the booking.
func (h *Handler) BookEntrance(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	var body struct {
		EventID *uint64 `json:"event_id"`
	}
	if err := c.Bind(&body); err != nil || body.EventID == nil {
		return badRequest(c, "event_id is required")
	}

	b, err := h.Engine.BookEntrance(c.Request().Context(), cl, tokenID, *body.EventID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// CancelBooking handles DELETE /v1/tokens/:token_id/bookings/:event_id.
func (h *Handler) CancelBooking(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	eventID, ok := uintParam(c, "event_id")
	if !ok {
		return badRequest(c, "invalid event id")
	}

	b, err := h.Engine.CancelBooking(c.Request().Context(), cl, tokenID, eventID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /v1/tokens/:token_id/bookings; the full history
// in entrance order, cancelled bookings included.
func (h *Handler) ListBookings(c echo.Context) error {
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	list, err := h.Engine.GetTokenBookings(c.Request().Context(), tokenID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token_id": tokenID, "bookings": list})
}

// AvailableEntrances handles GET /v1/tokens/:token_id/entrances.
func (h *Handler) AvailableEntrances(c echo.Context) error {
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	sum, err := h.Engine.GetAvailableEntrances(c.Request().Context(), tokenID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// CancellationCount handles
// GET /v1/tokens/:token_id/events/:event_id/cancellations.
func (h *Handler) CancellationCount(c echo.Context) error {
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	eventID, ok := uintParam(c, "event_id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx := c.Request().Context()
	n, err := h.Engine.GetCancellationCount(ctx, tokenID, eventID)
	if err != nil {
		return h.writeError(c, err)
	}
	limit, err := h.Engine.MaxCancellations(ctx)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token_id":                  tokenID,
		"event_id":                  eventID,
		"cancellations":             n,
		"max_cancellations_allowed": limit,
	})
}
