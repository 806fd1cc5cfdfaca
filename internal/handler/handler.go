package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/membership-ledger/internal/middleware"
	"github.com/iliyamo/membership-ledger/internal/model"
	"github.com/iliyamo/membership-ledger/internal/service"
)

// Handler exposes the ledger, the registry and the booking engine over
// HTTP.  All methods assume JWTAuth has already run.
type Handler struct {
	Ledger   *service.BenefitLedger
	Registry *service.EventRegistry
	Engine   *service.BookingEngine
	logger   *zap.Logger
}

// New constructs a Handler and panics if a service is missing.
func New(ledger *service.BenefitLedger, registry *service.EventRegistry, engine *service.BookingEngine, logger *zap.Logger) *Handler {
	if ledger == nil || registry == nil || engine == nil {
		panic("nil service passed to handler.New")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Ledger: ledger, Registry: registry, Engine: engine, logger: logger.Named("handler")}
}

func caller(c echo.Context) (model.Caller, bool) {
	return middleware.CallerFrom(c)
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "missing caller"})
}

// uintParam parses a non-negative integer path parameter.  Token and event
// ids start at zero.
func uintParam(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	return n, err == nil
}
