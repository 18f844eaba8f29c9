package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/dashboard"
	"github.com/mobilenet-retail/backoffice/internal/observability"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/ratelimit"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	settlementhttp "github.com/mobilenet-retail/backoffice/internal/settlement/http"
	"github.com/mobilenet-retail/backoffice/internal/shared"
	"github.com/mobilenet-retail/backoffice/internal/stats"
	"github.com/mobilenet-retail/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	SalesHandler   *sales.Handler
	StatsHandler   *stats.Handler
	CalcHandler    *settlementhttp.Handler
	CalcLimiter    ratelimit.Limiter
	Dashboard      *dashboard.Handler
	OrgHandler     *org.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// RequestLogging toggles chi's request logger.
	RequestLogging bool
}

// NewRouter constructs the chi.Router serving the /api surface.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.RequestLogging {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity(params.AuthService, params.Logger))

			if params.Dashboard != nil {
				r.Get("/profile", params.Dashboard.Profile)
				r.Route("/dashboard", params.Dashboard.MountRoutes)
			}
			r.Route("/sales", func(r chi.Router) {
				if params.StatsHandler != nil {
					r.Get("/statistics", params.StatsHandler.Statistics)
				}
				params.SalesHandler.MountRoutes(r)
			})
			if params.CalcHandler != nil {
				r.Route("/calculation", func(r chi.Router) {
					var limits []func(http.Handler) http.Handler
					if params.CalcLimiter != nil {
						limits = append(limits, ratelimit.Middleware(ratelimit.MiddlewareConfig{
							Limiter:  params.CalcLimiter,
							Endpoint: settlementhttp.Endpoint,
							Logger:   params.Logger,
							OnReject: params.Metrics.RateLimited,
						}))
					}
					params.CalcHandler.MountRoutes(r, limits...)
				})
			}
			if params.OrgHandler != nil {
				r.Route("/branches", params.OrgHandler.MountBranchRoutes)
				r.Route("/stores", params.OrgHandler.MountStoreRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, shared.ErrNotFound)
	})
	return r
}
