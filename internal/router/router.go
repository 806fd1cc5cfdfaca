package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/membership-ledger/internal/handler"
	"github.com/iliyamo/membership-ledger/internal/middleware"
	"github.com/iliyamo/membership-ledger/internal/model"
)

// RegisterRoutes registers the unauthenticated endpoints: the health check
// and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAPI registers the /v1 API.  Every route requires a valid access
// token for a known role; administrative authorization is decided by the
// services, not here.  limit guards the holder mutations and may be a
// pass-through.
func RegisterAPI(e *echo.Echo, h *handler.Handler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleHolder, model.RoleMerchant, model.RoleAdmin),
	)

	// ---- Events ----
	g.GET("/events", h.ListEvents)
	g.GET("/events/:event_id", h.GetEvent)

	// ---- Tokens ----
	t := g.Group("/tokens/:token_id")
	t.GET("/benefits", h.ListBenefits)
	t.POST("/benefits/:index/consume", h.ConsumeBenefit, limit)
	t.GET("/bookings", h.ListBookings)
	t.POST("/bookings", h.BookEntrance, limit)
	t.DELETE("/bookings/:event_id", h.CancelBooking, limit)
	t.GET("/entrances", h.AvailableEntrances)
	t.GET("/events/:event_id/cancellations", h.CancellationCount)

	// ---- Administration ----
	a := g.Group("/admin")
	a.POST("/tokens/:token_id/benefits", h.GrantBenefit)
	a.PUT("/tokens/:token_id/entrances", h.SetTokenEntrances)
	a.POST("/events", h.CreateEvent)
	a.POST("/events/:event_id/expire", h.ExpireEvent)
	a.POST("/events/:event_id/check-ins", h.CheckIn)
	a.PUT("/merchants/:address", h.SetMerchant)
	a.PUT("/policy/cancellations", h.SetCancellationPolicy)
}
