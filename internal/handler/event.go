package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListEvents handles GET /v1/events.  ?active=true hides expired events.
func (h *Handler) ListEvents(c echo.Context) error {
	events, err := h.Registry.ListEvents(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	if c.QueryParam("active") == "true" {
		active := events[:0]
		for _, e := range events {
			if e.IsActive {
				active = append(active, e)
			}
		}
		events = active
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// GetEvent handles GET /v1/events/:event_id.
func (h *Handler) GetEvent(c echo.Context) error {
	id, ok := uintParam(c, "event_id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	e, err := h.Registry.GetEventDetails(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event": e, "remaining": e.Remaining()})
}
