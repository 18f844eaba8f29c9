// Package dashboard serves the caller's profile and dashboard roll-ups.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/stats"
)

// Users loads the account behind an identity.
type Users interface {
	Profile(ctx context.Context, userID int64) (auth.User, error)
}

// Stores lists the store ids an identity can reach.
type Stores interface {
	AccessibleStoreIDs(ctx context.Context, id access.Identity) ([]int64, error)
}

// Permissions tells clients which actions to offer. The server enforces
// scope regardless.
type Permissions struct {
	AccessibleStoreIDs []int64 `json:"accessible_store_ids"`
	CanManageBranches  bool    `json:"can_manage_branches"`
	CanManageStores    bool    `json:"can_manage_stores"`
	CanMoveStores      bool    `json:"can_move_stores"`
	CanEditSales       bool    `json:"can_edit_sales"`
	CanViewAll         bool    `json:"can_view_all"`
}

// Profile is the body of GET /api/profile.
type Profile struct {
	UserID      int64       `json:"user_id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Role        access.Role `json:"role"`
	BranchID    *int64      `json:"branch_id,omitempty"`
	StoreID     *int64      `json:"store_id,omitempty"`
	Permissions Permissions `json:"permissions"`
}

// Handler serves /api/profile and /api/dashboard.
type Handler struct {
	logger     *slog.Logger
	users      Users
	stores     Stores
	aggregator *stats.Aggregator
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, users Users, stores Stores, aggregator *stats.Aggregator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, users: users, stores: stores, aggregator: aggregator}
}

// MountRoutes registers /api/dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/overview", h.overview)
	r.Get("/store-ranking", h.ranking)
}

// Profile handles GET /api/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.users.Profile(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, "load profile", err)
		return
	}
	storeIDs, err := h.stores.AccessibleStoreIDs(r.Context(), id)
	if err != nil {
		h.fail(w, "accessible stores", err)
		return
	}
	httpx.OK(w, Profile{
		UserID:      id.UserID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        id.Role,
		BranchID:    id.BranchID,
		StoreID:     id.StoreID,
		Permissions: permissionsFor(id.Role, storeIDs),
	})
}

func permissionsFor(role access.Role, storeIDs []int64) Permissions {
	if storeIDs == nil {
		storeIDs = []int64{}
	}
	hq := role == access.RoleHeadquarters
	return Permissions{
		AccessibleStoreIDs: storeIDs,
		CanManageBranches:  hq,
		CanManageStores:    hq || role == access.RoleBranch,
		CanMoveStores:      hq,
		CanEditSales:       true,
		CanViewAll:         hq,
	}
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.aggregator.Overview(r.Context(), id)
	if err != nil {
		h.fail(w, "dashboard overview", err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period := stats.PeriodFromRequest(r, h.aggregator.CurrentMonth())
	ranking, err := h.aggregator.Ranking(r.Context(), id, period, limit)
	if err != nil {
		h.fail(w, "store ranking", err)
		return
	}
	httpx.OKWithMeta(w, ranking, map[string]any{"period": period})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
