// Package settlementhttp serves row calculation previews.
package settlementhttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// Endpoint names the preview for rate limiting and metrics.
const Endpoint = "calculation.profile.row"

// DealerProfile selects the policy of a preview. An explicit TaxRateBP
// overrides the rate of the named profile.
type DealerProfile struct {
	Code      string `json:"code"`
	TaxRateBP *int64 `json:"tax_rate_bp"`
}

// RowRequest is the body of POST /api/calculation/profile/row.
type RowRequest struct {
	Row           settlement.Input `json:"row"`
	DealerProfile DealerProfile    `json:"dealerProfile"`
}

// RowResponse carries the derived fields and the ledger they came from.
type RowResponse struct {
	settlement.Result
	Profile   settlement.Policy `json:"profile"`
	Breakdown []settlement.Line `json:"breakdown"`
}

// Handler computes previews without touching storage.
type Handler struct {
	logger   *slog.Logger
	profiles *settlement.Profiles
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, profiles *settlement.Profiles) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, profiles: profiles}
}

// MountRoutes registers /api/calculation. Extra middlewares wrap the row
// endpoint only.
func (h *Handler) MountRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.With(middlewares...).Post("/profile/row", h.row)
}

func (h *Handler) row(w http.ResponseWriter, r *http.Request) {
	if _, err := access.FromContext(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	policy, err := h.policy(req.DealerProfile)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	calc, err := settlement.New(policy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines, res, err := calc.Breakdown(req.Row)
	if err != nil {
		httpx.RespondError(w, prefixed(err))
		return
	}
	httpx.OK(w, RowResponse{Result: res, Profile: policy, Breakdown: lines})
}

func (h *Handler) policy(p DealerProfile) (settlement.Policy, error) {
	policy, err := h.profiles.Lookup(p.Code)
	if err != nil {
		return settlement.Policy{}, err
	}
	if p.TaxRateBP != nil {
		policy.TaxRateBP = *p.TaxRateBP
		if err := policy.Validate(); err != nil {
			return settlement.Policy{}, shared.FieldErrors{"dealerProfile.tax_rate_bp": "must be between 0 and 10000"}
		}
	}
	return policy, nil
}

// prefixed moves field errors under "row." so clients can map them back.
func prefixed(err error) error {
	var fe shared.FieldErrors
	if !errors.As(err, &fe) {
		return err
	}
	out := make(shared.FieldErrors, len(fe))
	for k, v := range fe {
		out["row."+k] = v
	}
	return out
}
