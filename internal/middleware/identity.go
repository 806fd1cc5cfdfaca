package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/membership-ledger/internal/model"
)

const callerKey = "caller"

// CallerFrom returns the caller stored by JWTAuth.  ok is false on routes
// that are not behind JWTAuth.
func CallerFrom(c echo.Context) (model.Caller, bool) {
	caller, ok := c.Get(callerKey).(model.Caller)
	return caller, ok
}

// callerID identifies the caller for rate limiting; "anon" when unknown.
func callerID(c echo.Context) string {
	if caller, ok := CallerFrom(c); ok && caller.Address != "" {
		return caller.Address
	}
	return "anon"
}
