package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/dashboard"
	"github.com/mobilenet-retail/backoffice/internal/observability"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/ratelimit"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/seed"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	settlementhttp "github.com/mobilenet-retail/backoffice/internal/settlement/http"
	"github.com/mobilenet-retail/backoffice/internal/shared"
	"github.com/mobilenet-retail/backoffice/internal/stats"
	"github.com/mobilenet-retail/backoffice/internal/store/memory"
	"github.com/mobilenet-retail/backoffice/jobs"
)

type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	csrf    string
}

func (c *client) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.1:4000"
	if c.csrf != "" {
		req.Header.Set(shared.CSRFHeader, c.csrf)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type RouterSuite struct {
	suite.Suite
	handler http.Handler
	store   *memory.Store
	demo    seed.Summary
	metrics *observability.Metrics
}

func (s *RouterSuite) SetupTest() {
	t := s.T()
	now := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, IPRateLimit: 1000, SettlementTaxRateBP: 1000}
	profiles, err := cfg.Profiles()
	require.NoError(t, err)
	calc, err := settlement.New(profiles.Default())
	require.NoError(t, err)

	s.store = memory.New(clock)
	s.metrics = observability.NewMetrics()
	salesSvc := sales.NewService(s.store, calc, sales.Options{Idempotency: s.store, Metrics: s.metrics, Now: clock})
	s.demo, err = seed.Run(context.Background(), s.store, salesSvc, now, nil)
	require.NoError(t, err)

	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Rule{Limit: 2, Window: time.Minute}, clock)
	require.NoError(t, err)

	authSvc := auth.NewService(s.store)
	sessions := shared.NewSessionManager(rdb, "bo_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	orgSvc := org.NewService(s.store, nil)
	aggregator := stats.NewAggregator(s.store, s.store, 8784*time.Hour, clock, nil)

	s.handler = NewRouter(RouterParams{
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthService:    authSvc,
		AuthHandler:    auth.NewHandler(nil, authSvc, sessions, csrf),
		SalesHandler:   sales.NewHandler(nil, salesSvc),
		StatsHandler:   stats.NewHandler(nil, aggregator),
		CalcHandler:    settlementhttp.NewHandler(nil, profiles),
		CalcLimiter:    limiter,
		Dashboard:      dashboard.NewHandler(nil, authSvc, orgSvc, aggregator),
		OrgHandler:     org.NewHandler(nil, orgSvc),
		JobHandler:     jobs.NewHandler(nil, nil),
		Metrics:        s.metrics,
	})
}

func (s *RouterSuite) login(email string) *client {
	c := &client{t: s.T(), handler: s.handler, cookies: map[string]*http.Cookie{}}
	rec := c.do(http.MethodGet, "/api/auth/csrf", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	c.csrf = decode[struct {
		Data map[string]string `json:"data"`
	}](s.T(), rec).Data["csrf_token"]

	rec = c.do(http.MethodPost, "/api/auth/login", fmt.Sprintf(`{"email":%q,"password":%q}`, email, seed.DemoPassword))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	c.csrf = decode[struct {
		Data struct {
			CSRFToken string `json:"csrf_token"`
		} `json:"data"`
	}](s.T(), rec).Data.CSRFToken
	return c
}

func (s *RouterSuite) TestHealthAndSecurityHeaders() {
	c := &client{t: s.T(), handler: s.handler, cookies: map[string]*http.Cookie{}}
	rec := c.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
	s.Equal("DENY", rec.Header().Get("X-Frame-Options"))

	rec = c.do(http.MethodGet, "/jobs/health", "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestAPIRequiresSession() {
	c := &client{t: s.T(), handler: s.handler, cookies: map[string]*http.Cookie{}}
	for _, path := range []string{"/api/sales", "/api/profile", "/api/sales/statistics", "/api/dashboard/overview", "/api/branches"} {
		rec := c.do(http.MethodGet, path, "")
		s.Equal(http.StatusUnauthorized, rec.Code, path)
		s.Contains(rec.Body.String(), "AUTHENTICATION_ERROR")
	}
}

func (s *RouterSuite) TestUnsafeVerbsRequireCSRF() {
	c := s.login("hq@mobilenet.test")
	token := c.csrf
	c.csrf = ""
	body := fmt.Sprintf(`{"store_id":%d,"sales":[{"sale_date":"2026-05-12","carrier":"kt","activation_type":"new","base_price":1000}]}`, s.demo.Stores[0].ID)
	rec := c.do(http.MethodPost, "/api/sales/bulk", body)
	s.Equal(http.StatusUnauthorized, rec.Code)

	c.csrf = token
	rec = c.do(http.MethodPost, "/api/sales/bulk", body)
	s.Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestStoreUserFlow() {
	storeID := s.demo.Stores[0].ID
	c := s.login(fmt.Sprintf("store%d@mobilenet.test", storeID))

	profile := decode[struct {
		Data dashboard.Profile `json:"data"`
	}](s.T(), c.do(http.MethodGet, "/api/profile", ""))
	s.Equal([]int64{storeID}, profile.Data.Permissions.AccessibleStoreIDs)
	s.False(profile.Data.Permissions.CanManageBranches)

	body := `{"sales":[{"sale_date":"2026-05-12","carrier":"skt","activation_type":"new","base_price":100000,"verbal1":50000,"usim_fee":3000,"margin_after_tax":1}]}`
	rec := c.do(http.MethodPost, "/api/sales/bulk", body, sales.IdempotencyHeader, "k-1")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	saved := decode[struct {
		IDs []int64 `json:"ids"`
	}](s.T(), rec)
	s.Require().Len(saved.IDs, 1)

	rec = c.do(http.MethodGet, fmt.Sprintf("/api/sales/%d", saved.IDs[0]), "")
	s.Require().Equal(http.StatusOK, rec.Code)
	got := decode[struct {
		Data sales.Record `json:"data"`
	}](s.T(), rec)
	s.Equal(int64(132300), got.Data.MarginAfterTax)
	s.Equal(storeID, got.Data.StoreID)

	rec = c.do(http.MethodPost, "/api/sales/bulk", body, sales.IdempotencyHeader, "k-1")
	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), "DUPLICATE_REQUEST")

	other := s.demo.Stores[1].ID
	rec = c.do(http.MethodGet, fmt.Sprintf("/api/sales?store_id=%d", other), "")
	s.Equal(http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodGet, "/api/sales/statistics", "")
	s.Equal(http.StatusOK, rec.Code)

	rec = c.do(http.MethodPost, "/api/branches", `{"code":"X","name":"X"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestCalculationIsRateLimitedPerIdentity() {
	c := s.login("branch1@mobilenet.test")
	body := `{"row":{"base_price":100000,"verbal1":50000,"usim_fee":3000}}`
	for i := 0; i < 2; i++ {
		rec := c.do(http.MethodPost, "/api/calculation/profile/row", body)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := c.do(http.MethodPost, "/api/calculation/profile/row", body)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("60", rec.Header().Get("Retry-After"))

	other := s.login("branch2@mobilenet.test")
	rec = other.do(http.MethodPost, "/api/calculation/profile/row", body)
	s.Equal(http.StatusOK, rec.Code)

	metrics := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Contains(metrics.Body.String(), `ratelimit_rejections_total{endpoint="calculation.profile.row"} 1`)
}

func (s *RouterSuite) TestLogoutEndsSession() {
	c := s.login("hq@mobilenet.test")
	s.Equal(http.StatusOK, c.do(http.MethodGet, "/api/dashboard/overview", "").Code)
	s.Equal(http.StatusOK, c.do(http.MethodPost, "/api/auth/logout", "").Code)
	s.Equal(http.StatusUnauthorized, c.do(http.MethodGet, "/api/dashboard/overview", "").Code)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	h := NewRouter(RouterParams{AuthHandler: auth.NewHandler(nil, nil, nil, nil), SalesHandler: sales.NewHandler(nil, nil)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}
