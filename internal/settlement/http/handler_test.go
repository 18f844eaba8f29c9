package settlementhttp_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/ratelimit"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	settlementhttp "github.com/mobilenet-retail/backoffice/internal/settlement/http"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRouter(t *testing.T, limiter ratelimit.Limiter, id access.Identity) http.Handler {
	t.Helper()
	profiles, err := settlement.ProfilesFromRates(1000, false, map[string]int64{"premium": 500})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(access.WithIdentity(req.Context(), id)))
		})
	})
	var mws []func(http.Handler) http.Handler
	if limiter != nil {
		mws = append(mws, ratelimit.Middleware(ratelimit.MiddlewareConfig{Limiter: limiter, Endpoint: settlementhttp.Endpoint}))
	}
	h := settlementhttp.NewHandler(nil, profiles)
	r.Route("/api/calculation", func(r chi.Router) { h.MountRoutes(r, mws...) })
	return r
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/calculation/profile/row", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type previewBody struct {
	Success bool `json:"success"`
	Data    struct {
		settlement.Result
		Profile   settlement.Policy `json:"profile"`
		Breakdown []settlement.Line `json:"breakdown"`
	} `json:"data"`
}

const scenarioRow = `{"row":{"base_price":100000,"verbal1":50000,"usim_fee":3000},"dealerProfile":{}}`

func TestPreviewComputesDefaultProfile(t *testing.T) {
	h := newRouter(t, nil, access.StoreIdentity(3, 5))
	rec := post(h, scenarioRow)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body previewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(150000), body.Data.SettlementAmount)
	assert.Equal(t, int64(147000), body.Data.MarginBeforeTax)
	assert.Equal(t, int64(132300), body.Data.MarginAfterTax)
	assert.Equal(t, settlement.DefaultProfile, body.Data.Profile.Code)
	assert.Len(t, body.Data.Breakdown, 10)
}

func TestPreviewProfileSelection(t *testing.T) {
	h := newRouter(t, nil, access.HeadquartersIdentity(1))

	rec := post(h, `{"row":{"base_price":10000},"dealerProfile":{"code":"premium"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body previewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(9500), body.Data.MarginAfterTax)

	rec = post(h, `{"row":{"base_price":10000},"dealerProfile":{"tax_rate_bp":0}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(10000), body.Data.MarginAfterTax)

	rec = post(h, `{"row":{},"dealerProfile":{"code":"ghost"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "dealerProfile.code")

	rec = post(h, `{"row":{},"dealerProfile":{"tax_rate_bp":20000}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(h, `{"row":{"payback":2000000000000}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "row.payback")
}

func TestPreviewIsRateLimitedPerIdentity(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	limiter, err := ratelimit.NewRedisLimiter(client, ratelimit.Rule{Limit: 60, Window: time.Minute}, c.Now)
	require.NoError(t, err)

	h := newRouter(t, limiter, access.StoreIdentity(3, 5))
	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusOK, post(h, scenarioRow).Code, "call %d", i+1)
		c.Advance(100 * time.Millisecond)
	}
	rec := post(h, scenarioRow)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "54", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	other := newRouter(t, limiter, access.StoreIdentity(4, 6))
	assert.Equal(t, http.StatusOK, post(other, scenarioRow).Code)

	c.Advance(55 * time.Second)
	assert.Equal(t, http.StatusOK, post(h, scenarioRow).Code)
}
