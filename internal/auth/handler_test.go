package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/shared"
	_ "github.com/mobilenet-retail/backoffice/testing"
)

type stubRepo struct {
	users    map[int64]auth.User
	sessions map[string]int64
}

func newStubRepo(users ...auth.User) *stubRepo {
	r := &stubRepo{users: make(map[int64]auth.User), sessions: make(map[string]int64)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (auth.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, shared.ErrNotFound
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func storeUser(t *testing.T, password string) auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	storeID := int64(5)
	return auth.User{ID: 3, Email: "store5@mobilenet.test", PasswordHash: string(hashed), Role: access.RoleStore, StoreID: &storeID, IsActive: true}
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
}

// newHarness mounts the handler behind a minimal session middleware.
func newHarness(t *testing.T, repo *stubRepo) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	service := auth.NewService(repo)
	handler := auth.NewHandler(nil, service, sessions, csrf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/api/auth", handler.MountRoutes)
	r.With(auth.RequireIdentity(service, nil)).Get("/api/whoami", func(w http.ResponseWriter, req *http.Request) {
		id, err := access.FromContext(req.Context())
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(id)
	})
	return &harness{router: r, sessions: sessions, repo: repo}
}

func (h *harness) do(method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, newStubRepo(storeUser(t, "correctpass")))

	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"store5@mobilenet.test","password":"wrongpass"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTHENTICATION_ERROR")
	assert.Empty(t, h.repo.sessions)
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, newStubRepo())
	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"not-an-email","password":"x"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLoginThenIdentityIsRebuiltPerRequest(t *testing.T) {
	user := storeUser(t, "correctpass")
	repo := newStubRepo(user)
	h := newHarness(t, repo)

	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"store5@mobilenet.test","password":"correctpass"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "csrf_token")
	assert.NotContains(t, rec.Body.String(), "correctpass")
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Len(t, repo.sessions, 1)

	rec = h.do(http.MethodGet, "/api/whoami", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"StoreID":5`)

	// reassignment applies on the next request without a new login
	moved := int64(6)
	user.StoreID = &moved
	repo.users[user.ID] = user
	rec = h.do(http.MethodGet, "/api/whoami", "", cookies)
	assert.Contains(t, rec.Body.String(), `"StoreID":6`)

	user.IsActive = false
	repo.users[user.ID] = user
	rec = h.do(http.MethodGet, "/api/whoami", "", cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnonymousRequestIsRejected(t *testing.T) {
	h := newHarness(t, newStubRepo())
	rec := h.do(http.MethodGet, "/api/whoami", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := newStubRepo(storeUser(t, "correctpass"))
	h := newHarness(t, repo)
	rec := h.do(http.MethodPost, "/api/auth/login", `{"email":"store5@mobilenet.test","password":"correctpass"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	rec = h.do(http.MethodPost, "/api/auth/logout", "", cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.sessions)

	rec = h.do(http.MethodGet, "/api/whoami", "", cookies)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFEndpointIssuesToken(t *testing.T) {
	h := newHarness(t, newStubRepo())
	rec := h.do(http.MethodGet, "/api/auth/csrf", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Token string `json:"csrf_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.Token)
	assert.NotEmpty(t, rec.Result().Cookies())
}
