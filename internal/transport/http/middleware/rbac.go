package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"hrbenefits/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return RequireAnyPermission(store, permission)
}

// RequireAnyPermission admits the caller when their role holds at least one of
// permissions. A failing permission lookup denies the request.
func RequireAnyPermission(store PermissionStore, permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
				return
			}

			for _, permission := range permissions {
				allowed, err := store.HasPermission(r.Context(), user.RoleName, permission)
				if err != nil {
					slog.Error("permission lookup failed", "role", user.RoleName, "permission", permission, "err", err)
					api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", reqID)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			slog.Warn("permission denied",
				"userId", user.UserID,
				"role", user.RoleName,
				"required", permissions,
				"path", r.URL.Path,
			)
			api.Fail(w, http.StatusForbidden, "forbidden", "requires "+strings.Join(permissions, " or "), reqID)
		})
	}
}
