package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListBenefits handles GET /v1/tokens/:token_id/benefits.
func (h *Handler) ListBenefits(c echo.Context) error {
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	list, err := h.Ledger.ListBenefits(c.Request().Context(), tokenID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token_id": tokenID, "benefits": list})
}

// ConsumeBenefit handles POST /v1/tokens/:token_id/benefits/:index/consume.
// The body is {"amount": n}; an amount of 0 only validates the benefit.
func (h *Handler) ConsumeBenefit(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return badRequest(c, "invalid benefit index")
	}
	var body struct {
		Amount *int64 `json:"amount"`
	}
	if err := c.Bind(&body); err != nil || body.Amount == nil {
		return badRequest(c, "amount is required")
	}

	b, err := h.Ledger.ConsumeBenefit(c.Request().Context(), cl, tokenID, index, *body.Amount)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
