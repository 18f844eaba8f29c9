package auth

import (
	"log/slog"
	"net/http"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// RequireIdentity resolves the session user into an access.Identity on
// every request and rejects anonymous callers with 401.
func RequireIdentity(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == 0 {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			id, err := service.Identify(r.Context(), sess.User())
			if err != nil {
				if status, _ := httpx.StatusFor(err); status == http.StatusInternalServerError {
					logger.Error("identify session user", slog.Int64("user_id", sess.User()), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(access.WithIdentity(r.Context(), id)))
		})
	}
}
