package sales

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// IdempotencyHeader carries the optional replay-protection key of a bulk
// upsert.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// Handler exposes sales over JSON.
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

// MountRoutes registers /api/sales.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/bulk", h.bulk)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

type listMeta struct {
	Version int64 `json:"version"`
}

type listResponse struct {
	Success bool `json:"success"`
	shared.Page[Record]
	Meta listMeta `json:"meta"`
}

type bulkResponse struct {
	Success bool `json:"success"`
	BulkResult
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := listQueryFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, version, err := h.service.List(r.Context(), id, q)
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Success: true, Page: page, Meta: listMeta{Version: version}})
}

func listQueryFromRequest(r *http.Request) (ListQuery, error) {
	var (
		q   ListQuery
		err error
	)
	if q.StoreID, err = httpx.QueryID(r, "store_id"); err != nil {
		return q, err
	}
	if q.BranchID, err = httpx.QueryID(r, "branch_id"); err != nil {
		return q, err
	}
	if q.AllData, err = httpx.QueryBool(r, "all_data"); err != nil {
		return q, err
	}
	if q.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		return q, err
	}
	if q.PerPage, err = httpx.QueryInt(r, "per_page", 0); err != nil {
		return q, err
	}
	q.SaleDate = strings.TrimSpace(r.URL.Query().Get("sale_date"))
	return q, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	saleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id, saleID)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.OK(w, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	saleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, saleID); err != nil {
		h.fail(w, "delete sale", err)
		return
	}
	httpx.OK(w, map[string]int64{"id": saleID})
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httpx.RespondError(w, shared.FieldErrors{IdempotencyHeader: "is too long"})
		return
	}
	var req BulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkUpsert(r.Context(), id, req, key)
	if err != nil {
		h.fail(w, "bulk upsert sales", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bulkResponse{Success: true, BulkResult: res})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
