package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/membership-ledger/internal/config"
	"github.com/iliyamo/membership-ledger/internal/model"
	"github.com/iliyamo/membership-ledger/internal/utils"
)

const secret = "test-secret"

func newEcho(t *testing.T, mws ...echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	g := e.Group("", mws...)
	g.GET("/whoami", func(c echo.Context) error {
		caller, _ := CallerFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"address": caller.Address, "role": caller.Role})
	})
	return e
}

func doGet(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newEcho(t, JWTAuth(secret))

	t.Run("missing token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, doGet(e, "").Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := utils.NewAccessToken("other", "0xabc", model.RoleHolder, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(e, tok.Token).Code)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := utils.NewAccessToken(secret, "0xabc", model.RoleHolder, -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(e, tok.Token).Code)
	})

	t.Run("valid token sets the caller", func(t *testing.T) {
		tok, err := utils.NewAccessToken(secret, "0xABC", "admin", time.Minute)
		require.NoError(t, err)
		rec := doGet(e, tok.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"address":"0xabc","role":"ADMIN"}`, rec.Body.String())
	})

	t.Run("only the caller is stored", func(t *testing.T) {
		tok, err := utils.NewAccessToken(secret, "0xabc", model.RoleHolder, time.Minute)
		require.NoError(t, err)
		e := echo.New()
		var role any = "unset"
		e.GET("/whoami", func(c echo.Context) error {
			role = c.Get("role")
			_, ok := CallerFrom(c)
			assert.True(t, ok)
			return c.NoContent(http.StatusOK)
		}, JWTAuth(secret))
		require.Equal(t, http.StatusOK, doGet(e, tok.Token).Code)
		assert.Nil(t, role)
	})
}

func TestRequireRole(t *testing.T) {
	e := newEcho(t, JWTAuth(secret), RequireRole(model.RoleHolder, model.RoleAdmin))

	tok, err := utils.NewAccessToken(secret, "0xabc", model.RoleMerchant, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, doGet(e, tok.Token).Code)

	tok, err = utils.NewAccessToken(secret, "0xabc", model.RoleHolder, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(e, tok.Token).Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	e := newEcho(t, RequestLogger(zaptest.NewLogger(t)))

	rec := doGet(e, "")
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestTokenBucketWithoutRedisPassesThrough(t *testing.T) {
	e := newEcho(t, NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(e, "").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/tokens/1/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/tokens/:token_id/bookings")
	c.Set(callerKey, model.Caller{Address: "0xabc", Role: model.RoleHolder})

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "caller_route"}
	assert.Equal(t, "rl:caller:0xabc:route:POST /v1/tokens/:token_id/bookings", buildRateKey(cfg, c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))

	cfg.KeyStrategy = "bogus"
	assert.Equal(t, "rl:ip:10.0.0.1:caller:0xabc:route:POST /v1/tokens/:token_id/bookings", buildRateKey(cfg, c))
}

func TestParseLimiterResult(t *testing.T) {
	allowed, remaining, retry, ok := parseLimiterResult([]interface{}{int64(1), int64(4), int64(0)})
	assert.True(t, ok)
	assert.True(t, allowed)
	assert.Equal(t, int64(4), remaining)
	assert.Zero(t, retry)

	_, _, _, ok = parseLimiterResult("nope")
	assert.False(t, ok)
}
