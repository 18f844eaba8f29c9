package org

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
)

// Handler exposes branches and stores over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountBranchRoutes registers /api/branches.
func (h *Handler) MountBranchRoutes(r chi.Router) {
	r.Get("/", h.listBranches)
	r.Post("/", h.createBranch)
	r.Put("/{id}", h.updateBranch)
}

// MountStoreRoutes registers /api/stores.
func (h *Handler) MountStoreRoutes(r chi.Router) {
	r.Get("/", h.listStores)
	r.Post("/", h.createStore)
	r.Put("/{id}", h.updateStore)
	r.Put("/{id}/goals/{month}", h.setGoal)
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	branches, err := h.service.ListBranches(r.Context(), id)
	if err != nil {
		h.fail(w, "list branches", err)
		return
	}
	httpx.OK(w, branches)
}

func (h *Handler) createBranch(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BranchInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	branch, err := h.service.CreateBranch(r.Context(), id, in)
	if err != nil {
		h.fail(w, "create branch", err)
		return
	}
	httpx.Created(w, branch)
}

func (h *Handler) updateBranch(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	branchID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BranchInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	branch, err := h.service.UpdateBranch(r.Context(), id, branchID, in)
	if err != nil {
		h.fail(w, "update branch", err)
		return
	}
	httpx.OK(w, branch)
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	branchID, err := httpx.QueryID(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stores, err := h.service.ListStores(r.Context(), id, branchID)
	if err != nil {
		h.fail(w, "list stores", err)
		return
	}
	httpx.OK(w, stores)
}

func (h *Handler) createStore(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in StoreInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	store, err := h.service.CreateStore(r.Context(), id, in)
	if err != nil {
		h.fail(w, "create store", err)
		return
	}
	httpx.Created(w, store)
}

func (h *Handler) updateStore(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	storeID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in StoreInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	store, err := h.service.UpdateStore(r.Context(), id, storeID, in)
	if err != nil {
		h.fail(w, "update store", err)
		return
	}
	httpx.OK(w, store)
}

func (h *Handler) setGoal(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	storeID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in GoalInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	goal, err := h.service.SetGoal(r.Context(), id, storeID, chi.URLParam(r, "month"), in)
	if err != nil {
		h.fail(w, "set store goal", err)
		return
	}
	httpx.OK(w, goal)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
