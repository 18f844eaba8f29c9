package org_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/store/memory"
)

func orgRouter(svc *org.Service, id access.Identity) http.Handler {
	h := org.NewHandler(nil, svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(access.WithIdentity(req.Context(), id)))
		})
	})
	r.Route("/api/branches", h.MountBranchRoutes)
	r.Route("/api/stores", h.MountStoreRoutes)
	return r
}

func call(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBranchRoutes(t *testing.T) {
	svc := org.NewService(memory.New(time.Now), nil)
	hq := orgRouter(svc, access.HeadquartersIdentity(1))

	rec := call(hq, http.MethodPost, "/api/branches", `{"code":"seoul","name":"Seoul"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"SEOUL"`)

	rec = call(hq, http.MethodPost, "/api/branches", `{"code":"seoul","name":"Again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(hq, http.MethodPut, "/api/branches/abc", `{"code":"x","name":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	branch := orgRouter(svc, access.BranchIdentity(2, 1))
	rec = call(branch, http.MethodPost, "/api/branches", `{"code":"busan","name":"Busan"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStoreRoutes(t *testing.T) {
	svc := org.NewService(memory.New(time.Now), nil)
	hq := orgRouter(svc, access.HeadquartersIdentity(1))
	assert.Equal(t, http.StatusCreated, call(hq, http.MethodPost, "/api/branches", `{"code":"A","name":"A"}`).Code)

	branch := orgRouter(svc, access.BranchIdentity(2, 1))
	rec := call(branch, http.MethodPost, "/api/stores", `{"name":"Store one"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"branch_id":1`)

	rec = call(branch, http.MethodGet, "/api/stores?branch_id=2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(branch, http.MethodPut, "/api/stores/1/goals/2026-03", `{"target_count":10,"target_amount":100}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(orgRouter(svc, access.StoreIdentity(3, 1)), http.MethodGet, "/api/stores", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":`+strconv.Itoa(1))
}
