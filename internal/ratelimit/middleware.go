package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// MiddlewareConfig wires the throttle in front of one endpoint.
type MiddlewareConfig struct {
	Limiter  Limiter
	Endpoint string
	Logger   *slog.Logger
	// OnReject is called for every rejected request.
	OnReject func(endpoint string)
}

// Middleware keys the limiter by the request identity, so it must run after
// the identity middleware. Limiter backend failures let the request through.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := access.FromContext(r.Context())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			decision, err := cfg.Limiter.Allow(r.Context(), strconv.FormatInt(id.UserID, 10), cfg.Endpoint)
			if err != nil {
				logger.Warn("rate limiter unavailable", slog.String("endpoint", cfg.Endpoint), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				if cfg.OnReject != nil {
					cfg.OnReject(cfg.Endpoint)
				}
				logger.Info("rate limit exceeded",
					slog.Int64("user_id", id.UserID),
					slog.String("endpoint", cfg.Endpoint),
					slog.Duration("retry_after", decision.RetryAfter))
				httpx.RespondError(w, &shared.RateLimitError{Limit: decision.Limit, RetryAfter: decision.RetryAfter})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
