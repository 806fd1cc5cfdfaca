package handler

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"

	"github.com/iliyamo/membership-ledger/internal/model"
	"github.com/iliyamo/membership-ledger/internal/service"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// plainText strips all markup from free text supplied by administrators.
func plainText(s string) string {
	textPolicyOnce.Do(func() { textPolicy = bluemonday.StrictPolicy() })
	return strings.TrimSpace(textPolicy.Sanitize(strings.TrimSpace(s)))
}

// GrantBenefit handles POST /v1/admin/tokens/:token_id/benefits.
func (h *Handler) GrantBenefit(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	var body struct {
		BenefitType  string `json:"benefit_type"`
		Value        int64  `json:"value"`
		DurationDays int    `json:"duration_days"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	typ, err := model.ParseBenefitType(body.BenefitType)
	if err != nil {
		return h.writeError(c, err)
	}

	b, err := h.Ledger.GrantBenefit(c.Request().Context(), cl, service.GrantInput{
		TokenID:  tokenID,
		Type:     typ,
		Value:    body.Value,
		Duration: time.Duration(body.DurationDays) * 24 * time.Hour,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// SetTokenEntrances handles PUT /v1/admin/tokens/:token_id/entrances.
func (h *Handler) SetTokenEntrances(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	tokenID, ok := uintParam(c, "token_id")
	if !ok {
		return badRequest(c, "invalid token id")
	}
	var body struct {
		Total *int `json:"total"`
	}
	if err := c.Bind(&body); err != nil || body.Total == nil {
		return badRequest(c, "total is required")
	}
	ctx := c.Request().Context()
	if err := h.Engine.SetTokenEntrances(ctx, cl, tokenID, *body.Total); err != nil {
		return h.writeError(c, err)
	}
	sum, err := h.Engine.GetAvailableEntrances(ctx, tokenID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// CreateEvent handles POST /v1/admin/events.  Name and location are
// reduced to plain text before they are stored.
func (h *Handler) CreateEvent(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	var body struct {
		Name          string    `json:"name"`
		Location      string    `json:"location"`
		Date          time.Time `json:"date"`
		MaxCapacity   int       `json:"max_capacity"`
		AccessBenefit bool      `json:"access_benefit"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	name := plainText(body.Name)
	if name == "" {
		return badRequest(c, "name is required")
	}
	if body.Date.IsZero() {
		return badRequest(c, "date is required")
	}

	e, err := h.Registry.CreateEvent(c.Request().Context(), cl, model.NewEvent{
		Name:          name,
		Location:      plainText(body.Location),
		Date:          body.Date.UTC(),
		MaxCapacity:   body.MaxCapacity,
		AccessBenefit: body.AccessBenefit,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// ExpireEvent handles POST /v1/admin/events/:event_id/expire.
func (h *Handler) ExpireEvent(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	id, ok := uintParam(c, "event_id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	e, err := h.Registry.ExpireEvent(c.Request().Context(), cl, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// CheckIn handles POST /v1/admin/events/:event_id/check-ins with body
// {"token_id": n}.
func (h *Handler) CheckIn(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	eventID, ok := uintParam(c, "event_id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body struct {
		TokenID *uint64 `json:"token_id"`
	}
	if err := c.Bind(&body); err != nil || body.TokenID == nil {
		return badRequest(c, "token_id is required")
	}
	b, err := h.Engine.CheckIn(c.Request().Context(), cl, *body.TokenID, eventID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// SetMerchant handles PUT /v1/admin/merchants/:address.
func (h *Handler) SetMerchant(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	var body struct {
		Authorized *bool `json:"authorized"`
	}
	if err := c.Bind(&body); err != nil || body.Authorized == nil {
		return badRequest(c, "authorized is required")
	}
	addr := model.NormalizeAddress(c.Param("address"))
	if err := h.Ledger.SetMerchantStatus(c.Request().Context(), cl, addr, *body.Authorized); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"address": addr, "authorized": *body.Authorized})
}

// SetCancellationPolicy handles PUT /v1/admin/policy/cancellations.
func (h *Handler) SetCancellationPolicy(c echo.Context) error {
	cl, ok := caller(c)
	if !ok {
		return unauthenticated(c)
	}
	var body struct {
		Max *int `json:"max"`
	}
	if err := c.Bind(&body); err != nil || body.Max == nil {
		return badRequest(c, "max is required")
	}
	if err := h.Engine.SetMaxCancellations(c.Request().Context(), cl, *body.Max); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"max_cancellations_allowed": *body.Max})
}
