package stats

import (
	"log/slog"
	"net/http"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
)

// Handler serves period statistics.
type Handler struct {
	logger     *slog.Logger
	aggregator *Aggregator
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, aggregator *Aggregator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, aggregator: aggregator}
}

// PeriodFromRequest reads start_date/end_date, defaulting to fallback when
// both are absent. A single bound selects one day.
func PeriodFromRequest(r *http.Request, fallback Period) Period {
	p := Period{Start: r.URL.Query().Get("start_date"), End: r.URL.Query().Get("end_date")}
	if p.Start == "" && p.End == "" {
		return fallback
	}
	if p.End == "" {
		p.End = p.Start
	}
	if p.Start == "" {
		p.Start = p.End
	}
	return p
}

// Statistics handles GET /api/sales/statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	id, err := access.FromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.aggregator.Aggregate(r.Context(), id, PeriodFromRequest(r, h.aggregator.CurrentMonth()))
	if err != nil {
		if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
			h.logger.Error("sales statistics", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, report)
}
