package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/services"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// RequireAuth resolves the session once per request and stores the caller's
// identity in the request context.
func RequireAuth(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authService.CurrentIdentity(r)
			if err != nil {
				slog.Debug("rejecting unauthenticated request", "path", r.URL.Path, "error", err)
				authService.ClearSession(w)
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole sends callers holding another role back to their own home page.
func RequireRole(authService *services.AuthService, role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			if identity.Role != role {
				authService.AddFlash(w, r, services.FlashError, "Access denied.")
				http.Redirect(w, r, identity.Role.HomePath(), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return identity, ok
}

func GetIdentity(ctx context.Context) models.Identity {
	identity, _ := IdentityFrom(ctx)
	return identity
}
